package main

/**************************
 ******* Auth API *********
 **************************/

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type"`
}

/**************************
 ****** Records API *******
 **************************/

type RecordsRequest struct {
	StartDate    int    `json:"start_date"`
	EndDate      int    `json:"end_date"`
	HospitalCode string `json:"hospital_code"`
	CodeDivision string `json:"code_division"`
}

type PaymentDetailRequest struct {
	MdrpNo       int    `json:"mdrp_no"`
	HospitalCode string `json:"hospital_code"`
}

// RecordsResponse carries the verbatim upstream payload alongside
// the canonical record list and the facet selector data.
type RecordsResponse struct {
	Success bool           `json:"success"`
	Data    any            `json:"data"`
	Records []Record       `json:"records"`
	Facets  []string       `json:"facets"`
	Counts  map[string]int `json:"counts"`
	Total   int            `json:"total"`
}

type FacetsResponse struct {
	Success bool           `json:"success"`
	Facets  []string       `json:"facets"`
	Counts  map[string]int `json:"counts"`
	Total   int            `json:"total"`
}

type FilterRequest struct {
	Facet string `json:"facet"`
}

// APIResponse is the generic success/message/data envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

/********************************
 ********** App Config **********
 ********************************/

type Config struct {
	UpstreamBaseURL     string `json:"upstreamBaseUrl"`
	DefaultHospitalCode string `json:"defaultHospitalCode"`
	SecretKey           string `json:"secretKey"`
	TokenTTLMinutes     int    `json:"tokenTtlMinutes"`
}
