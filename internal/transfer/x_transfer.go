package transfer

type XTweetRequest struct {
	Text string `json:"text"`
}

type XTweetData struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type XTweetResponse struct {
	Data XTweetData `json:"data"`
}

type XUser struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

type XUserResponse struct {
	Data XUser `json:"data"`
}

type XErrorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}
