package models

// CreateFolderRequest is the body of POST /api/create-folder/.
type CreateFolderRequest struct {
	FolderName string `json:"folderName"`
	Parent     string `json:"parent"`
}

// CreateFileRequest is the body of POST /api/create-file/.
type CreateFileRequest struct {
	Data       Rows   `json:"data"`
	Filename   string `json:"filename"`
	FolderName string `json:"foldername"`
}

// ErrorResponse is the server's error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// Text returns the first non-empty message field.
func (e ErrorResponse) Text() string {
	switch {
	case e.Error != "":
		return e.Error
	case e.Message != "":
		return e.Message
	default:
		return e.Detail
	}
}
