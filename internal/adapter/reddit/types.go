package reddit

// listing 是 Reddit 列表接口的外层结构
type listing struct {
	Kind string      `json:"kind"`
	Data listingData `json:"data"`
}

type listingData struct {
	After    string  `json:"after"`
	Children []thing `json:"children"`
}

type thing struct {
	Kind string   `json:"kind"`
	Data postData `json:"data"`
}

type postData struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Subreddit       string  `json:"subreddit"`
	Title           string  `json:"title"`
	Selftext        string  `json:"selftext"`
	Author          string  `json:"author"`
	Permalink       string  `json:"permalink"`
	CreatedUTC      float64 `json:"created_utc"`
	CrosspostParent string  `json:"crosspost_parent"`
}

// commentResponse 是 /api/comment 在 api_type=json 时的返回
type commentResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			Things []struct {
				Kind string `json:"kind"`
				Data struct {
					ID         string  `json:"id"`
					Name       string  `json:"name"`
					CreatedUTC float64 `json:"created_utc"`
				} `json:"data"`
			} `json:"things"`
		} `json:"data"`
	} `json:"json"`
}
