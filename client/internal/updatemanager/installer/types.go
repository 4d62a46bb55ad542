package installer

// UpdateGuiRequest asks the privileged service to install the verified GUI artifact
type UpdateGuiRequest struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}
