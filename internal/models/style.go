package models

// StyleCategory is one section of the remote style catalog.
type StyleCategory struct {
	ID        int             `json:"id"`
	Title     string          `json:"title"`
	Preview   *string         `json:"preview,omitempty"`
	IsNew     bool            `json:"is_new"`
	Templates []StyleTemplate `json:"templates"`
}

// StyleTemplate belongs to exactly one StyleCategory.
type StyleTemplate struct {
	ID        int     `json:"id"`
	Title     *string `json:"title,omitempty"`
	Preview   string  `json:"preview"`
	Gender    string  `json:"gender"`
	IsEnabled bool    `json:"is_enabled"`
}

// PreviewURLs lists every preview image referenced by the categories, category
// covers first.
func PreviewURLs(categories []StyleCategory) []string {
	var urls []string
	for _, c := range categories {
		if c.Preview != nil && *c.Preview != "" {
			urls = append(urls, *c.Preview)
		}
		for _, t := range c.Templates {
			if t.Preview != "" {
				urls = append(urls, t.Preview)
			}
		}
	}
	return urls
}
