package scraper

// Selectors locate every element the crawler touches on the target site.
// All values are CSS selectors.
type Selectors struct {
	// Search overlay on the landing page
	SearchButton string `json:"search_button" yaml:"search_button"`
	SearchInput  string `json:"search_input" yaml:"search_input"`
	SearchSubmit string `json:"search_submit" yaml:"search_submit"`
	SortSelect   string `json:"sort_select" yaml:"sort_select"`
	// SortNewest is the visible text of the newest-first sort option.
	SortNewest   string `json:"sort_newest" yaml:"sort_newest"`

	// Category filter panel
	FiltersOpen   string `json:"filters_open" yaml:"filters_open"`
	FiltersExpand string `json:"filters_expand" yaml:"filters_expand"`
	CategoryLabel string `json:"category_label" yaml:"category_label"`
	FiltersApply  string `json:"filters_apply" yaml:"filters_apply"`

	// Result list
	Results       string `json:"results" yaml:"results"`
	Item          string `json:"item" yaml:"item"`
	ItemLink      string `json:"item_link" yaml:"item_link"`
	ItemTitleAttr string `json:"item_title_attr" yaml:"item_title_attr"`
	Description   string `json:"description" yaml:"description"`
	Image         string `json:"image" yaml:"image"`
	LiveTimestamp string `json:"live_timestamp" yaml:"live_timestamp"`
	Timestamp     string `json:"timestamp" yaml:"timestamp"`

	// NextPage is the link to the following results page.
	NextPage string `json:"next_page" yaml:"next_page"`
}

// DefaultSelectors returns the selectors for the AP News search page.
func DefaultSelectors() Selectors {
	return Selectors{
		SearchButton: ".SearchOverlay-search-button",
		SearchInput:  ".SearchOverlay-search-input",
		SearchSubmit: ".SearchOverlay-search-submit",
		SortSelect:   ".Select-input",
		SortNewest:   "Newest",

		FiltersOpen:   ".SearchResultsModule-filters-open",
		FiltersExpand: ".SearchFilter-content",
		CategoryLabel: ".CheckboxInput-label",
		FiltersApply:  ".SearchResultsModule-filters-applyButton",

		Results:       ".SearchResultsModule-results",
		Item:          ".PagePromo",
		ItemLink:      ".Link",
		ItemTitleAttr: "data-gtm-region",
		Description:   ".PagePromo-description",
		Image:         ".Image",
		LiveTimestamp: ".Timestamp-template-now",
		Timestamp:     ".Timestamp-template",

		NextPage: ".Pagination-nextPage a",
	}
}

// Merge fills every empty field of s from defaults.
func (s Selectors) Merge(defaults Selectors) Selectors {
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&s.SearchButton, defaults.SearchButton)
	fill(&s.SearchInput, defaults.SearchInput)
	fill(&s.SearchSubmit, defaults.SearchSubmit)
	fill(&s.SortSelect, defaults.SortSelect)
	fill(&s.SortNewest, defaults.SortNewest)
	fill(&s.FiltersOpen, defaults.FiltersOpen)
	fill(&s.FiltersExpand, defaults.FiltersExpand)
	fill(&s.CategoryLabel, defaults.CategoryLabel)
	fill(&s.FiltersApply, defaults.FiltersApply)
	fill(&s.Results, defaults.Results)
	fill(&s.Item, defaults.Item)
	fill(&s.ItemLink, defaults.ItemLink)
	fill(&s.ItemTitleAttr, defaults.ItemTitleAttr)
	fill(&s.Description, defaults.Description)
	fill(&s.Image, defaults.Image)
	fill(&s.LiveTimestamp, defaults.LiveTimestamp)
	fill(&s.Timestamp, defaults.Timestamp)
	fill(&s.NextPage, defaults.NextPage)
	return s
}
