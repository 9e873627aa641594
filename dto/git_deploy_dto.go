package dto

// DeployHookRequest represents a request to deploy a project from a git push
// hook. The API key may come from the body or the X-API-Key header.
type DeployHookRequest struct {
	ProjectID     uint   `json:"projectId"`
	APIKey        string `json:"apiKey"`
	Branch        string `json:"branch"`
	CommitID      string `json:"commitId"`
	CommitMessage string `json:"commitMessage"`
	CallbackURL   string `json:"callbackUrl"`
}

// DeployHookResponse represents the response for a hook-triggered deployment
type DeployHookResponse struct {
	DeploymentID uint   `json:"deploymentId"`
	ProjectID    uint   `json:"projectId"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	CreatedAt    string `json:"createdAt"`
}
