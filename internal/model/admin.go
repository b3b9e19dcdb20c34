package model

// ServiceKeyCreateRequest is the body of POST /admin/service-keys.
type ServiceKeyCreateRequest struct {
	KeyName     string `json:"key_name" validate:"required,min=3,max=100,keyname"`
	Environment string `json:"environment" validate:"required,oneof=prod dev"`
}

// ServiceKeyRotateRequest is the body of POST /admin/rotate-key.
type ServiceKeyRotateRequest struct {
	KeyName string `json:"key_name" validate:"required,min=3,max=100,keyname"`
}

// ServiceKeyListResponse lists credential records without their secrets.
type ServiceKeyListResponse struct {
	Keys  []ServiceKey `json:"keys"`
	Count int          `json:"count"`
}
