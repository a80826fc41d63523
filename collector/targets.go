package collector

import (
	"github.com/hazumi-dev/clipminer/locator"
	"github.com/hazumi-dev/clipminer/session"
)

// Targets is the locator configuration for every logical UI element the
// pipeline touches. Pure data: the target application renames internal
// identifiers across releases, so each entry is an ordered fallback set and
// nothing in the pipeline hard-codes a selector.
type Targets struct {
	// Feed navigation.
	HomeTab      locator.Set
	PlayerView   locator.Set
	ShareButton  locator.Set
	CopyLink     locator.Set
	LikeButton   locator.Set
	LikeCount    locator.Set
	ChannelName  locator.Set
	CaptionText  locator.Set
	CaptionMore  locator.Set
	StillImage   locator.Locator // presence probe, single locator

	// Search setup protocol.
	SearchIcon      locator.Set
	SearchInput     locator.Set
	SearchSubmit    locator.Set
	FilterIcon      locator.Set
	FilterMenu      locator.Set
	FilterSortDate  locator.Set
	FilterUnwatched locator.Set
	FilterSixMonths locator.Set
	FilterApply     locator.Set
	ResultGridItem  locator.Set
	FilterPanel     locator.Set
}

// DefaultTargets builds the locator table for one application id. Resource
// ids are prefixed with the app id; xpath and accessibility fallbacks cover
// releases that dropped or renamed the id.
func DefaultTargets(appID string) *Targets {
	id := func(suffix string) locator.Locator {
		return locator.Locator{Strategy: session.ByID, Query: appID + ":id/" + suffix}
	}
	xpath := func(q string) locator.Locator {
		return locator.Locator{Strategy: session.ByXPath, Query: q}
	}
	acc := func(q string) locator.Locator {
		return locator.Locator{Strategy: session.ByAccessibility, Query: q}
	}

	return &Targets{
		HomeTab: locator.Set{
			acc("Home"),
			id("main_tab_home"),
			xpath(`//*[@content-desc="Home"]`),
		},
		PlayerView: locator.Set{
			id("video_player_container"),
			xpath(`//*[contains(@resource-id,"player")]`),
		},
		ShareButton: locator.Set{
			acc("Share"),
			id("share_btn"),
			xpath(`//*[contains(@content-desc,"Share")]`),
		},
		CopyLink: locator.Set{
			acc("Copy link"),
			id("copy_link"),
			xpath(`//*[contains(@text,"Copy link")]`),
		},
		LikeButton: locator.Set{
			id("like_btn"),
			xpath(`//*[contains(@content-desc,"Like")]`),
		},
		LikeCount: locator.Set{
			id("like_count"),
			xpath(`//*[contains(@resource-id,"digg_count")]`),
		},
		ChannelName: locator.Set{
			id("author_title"),
			xpath(`//*[starts-with(@text,"@")]`),
		},
		CaptionText: locator.Set{
			id("video_desc"),
			xpath(`//*[contains(@resource-id,"desc")]`),
		},
		CaptionMore: locator.Set{
			xpath(`//*[@text="more"]`),
			id("desc_expand"),
		},
		StillImage: acc("Photo mode"),

		SearchIcon: locator.Set{
			acc("Search"),
			id("search_btn"),
		},
		SearchInput: locator.Set{
			id("et_search_kw"),
			xpath(`//android.widget.EditText`),
		},
		SearchSubmit: locator.Set{
			id("search_submit"),
			xpath(`//*[@content-desc="Search"][@clickable="true"]`),
		},
		FilterIcon: locator.Set{
			acc("Filters"),
			id("filter_btn"),
		},
		FilterMenu: locator.Set{
			id("filter_entrance"),
			xpath(`//*[contains(@text,"Filter")]`),
		},
		FilterSortDate: locator.Set{
			xpath(`//*[@text="Date posted"]`),
			id("sort_by_date"),
		},
		FilterUnwatched: locator.Set{
			xpath(`//*[@text="Unwatched"]`),
			id("filter_unwatched"),
		},
		FilterSixMonths: locator.Set{
			xpath(`//*[@text="Last 6 months"]`),
			id("filter_six_months"),
		},
		FilterApply: locator.Set{
			xpath(`//*[@text="Apply"]`),
			id("filter_apply"),
		},
		ResultGridItem: locator.Set{
			id("search_result_item"),
			xpath(`(//*[contains(@resource-id,"cover")])[1]`),
		},
		FilterPanel: locator.Set{
			id("filter_panel"),
			xpath(`//*[contains(@resource-id,"filter_panel")]`),
		},
	}
}
