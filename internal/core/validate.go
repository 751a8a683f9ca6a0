package core

// FileUUIDRequest is the body of the cloud storage convert routes.
type FileUUIDRequest struct {
	FileUUID string `json:"fileUUID"`
}

// AuthUUIDRequest is the body of the login polling routes.
type AuthUUIDRequest struct {
	AuthUUID string `json:"authUUID"`
}

// ValidateFileUUIDRequest checks that fileUUID is present and a UUID v4.
func ValidateFileUUIDRequest(req *FileUUIDRequest) *AppError {
	return validateUUIDField("fileUUID", req.FileUUID)
}

// ValidateAuthUUIDRequest checks that authUUID is present and a UUID v4.
func ValidateAuthUUIDRequest(req *AuthUUIDRequest) *AppError {
	return validateUUIDField("authUUID", req.AuthUUID)
}

func validateUUIDField(name, value string) *AppError {
	if value == "" {
		return NewParamsCheckFailed("body must have required property '" + name + "'")
	}
	if !IsValidUUIDv4(value) {
		return NewParamsCheckFailed("body/" + name + " must match format \"uuid-v4\"")
	}
	return nil
}
