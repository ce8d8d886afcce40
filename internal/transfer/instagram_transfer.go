package transfer

// GraphErrorResponse is the error envelope shared by the Facebook and
// Instagram Graph APIs.
type GraphErrorResponse struct {
	Error struct {
		Message        string `json:"message"`
		Type           string `json:"type"`
		Code           int    `json:"code"`
		ErrorSubcode   int    `json:"error_subcode"`
		IsTransient    bool   `json:"is_transient"`
		ErrorUserTitle string `json:"error_user_title"`
		ErrorUserMsg   string `json:"error_user_msg"`
		FbtraceID      string `json:"fbtrace_id"`
	} `json:"error"`
}

type GraphID struct {
	ID string `json:"id"`
}

type InstagramContainerStatus struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

type InstagramPermalink struct {
	ID        string `json:"id"`
	Permalink string `json:"permalink"`
}

type FacebookPageToken struct {
	ID          string `json:"id"`
	AccessToken string `json:"access_token"`
}
