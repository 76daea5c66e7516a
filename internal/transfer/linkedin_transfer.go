package transfer

type LinkedinTokenResponse struct {
	AccessToken           string `json:"access_token"`
	ExpiresIn             int    `json:"expires_in"`
	RefreshToken          string `json:"refresh_token"`
	RefreshTokenExpiresIn int    `json:"refresh_token_expires_in"`
	Scope                 string `json:"scope"`
}

type LinkedinUserInfo struct {
	Sub     string `json:"sub"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Email   string `json:"email"`
}

type LinkedinShareCommentary struct {
	Text string `json:"text"`
}

type LinkedinMedia struct {
	Status string `json:"status"`
	Media  string `json:"media"`
}

type LinkedinShareContent struct {
	ShareCommentary    LinkedinShareCommentary `json:"shareCommentary"`
	ShareMediaCategory string                  `json:"shareMediaCategory"`
	Media              []LinkedinMedia         `json:"media,omitempty"`
}

type LinkedinUgcPostRequest struct {
	Author          string                          `json:"author"`
	LifecycleState  string                          `json:"lifecycleState"`
	SpecificContent map[string]LinkedinShareContent `json:"specificContent"`
	Visibility      map[string]string               `json:"visibility"`
}

type LinkedinUgcPostResponse struct {
	ID string `json:"id"`
}

type LinkedinServiceRelationship struct {
	RelationshipType string `json:"relationshipType"`
	Identifier       string `json:"identifier"`
}

type LinkedinRegisterUploadBody struct {
	Recipes              []string                      `json:"recipes"`
	Owner                string                        `json:"owner"`
	ServiceRelationships []LinkedinServiceRelationship `json:"serviceRelationships"`
}

type LinkedinRegisterUploadRequest struct {
	RegisterUploadRequest LinkedinRegisterUploadBody `json:"registerUploadRequest"`
}

type LinkedinUploadMechanism struct {
	UploadURL string `json:"uploadUrl"`
}

type LinkedinRegisterUploadValue struct {
	UploadMechanism map[string]LinkedinUploadMechanism `json:"uploadMechanism"`
	Asset           string                             `json:"asset"`
}

type LinkedinRegisterUploadResponse struct {
	Value LinkedinRegisterUploadValue `json:"value"`
}
