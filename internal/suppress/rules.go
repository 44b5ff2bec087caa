package suppress

// RulesVersion is bumped whenever a lexicon or threshold below changes, so
// stored captures can be correlated with the rule set that produced them.
const RulesVersion = 1

const (
	// HighZIndexThreshold marks overlay-grade stacking. Elements pinned to
	// the viewport with a z-index above this are overlay candidates even
	// without a matching token.
	HighZIndexThreshold = 900

	// Corner sweep bounds for floating action buttons (chat/contact
	// widgets). Elements at most this large, anchored within
	// CornerEdgeMarginPx of a bottom corner, are suppressed.
	CornerMaxWidthPx   = 160
	CornerMaxHeightPx  = 160
	CornerEdgeMarginPx = 60
)

// NavAllowTags are element tags always classified as navigation.
var NavAllowTags = []string{"nav", "header"}

// NavAllowTokens classify an element as navigation chrome when found in its
// lower-cased class or id. Navigation always wins over the deny list.
var NavAllowTokens = []string{
	"nav",
	"navbar",
	"navigation",
	"header",
	"menu",
	"gnb",
	"lnb",
	"breadcrumb",
}

// OverlayDenyTokens classify an element as an overlay candidate when found in
// its lower-cased class or id.
var OverlayDenyTokens = []string{
	"popup",
	"pop-up",
	"modal",
	"overlay",
	"banner",
	"float",
	"sticky",
	"layer",
	"dialog",
	"toast",
	"notification",
	"notice",
	"cookie",
	"consent",
	"chat",
	"quick",
}

// OverlaySelectors is the fixed query set for the selector + geometry sweep.
// Matches are suppressed on size (over half the viewport in either axis) or
// on fixed/sticky positioning regardless of size.
var OverlaySelectors = []string{
	`[class*="popup"]`,
	`[id*="popup"]`,
	`[class*="modal"]`,
	`[id*="modal"]`,
	`[class*="overlay"]`,
	`[class*="layer"]`,
	`[id*="layer"]`,
	`[class*="float"]`,
	`[class*="quick-menu"]`,
	`[class*="quick_menu"]`,
	`[class*="side-menu"]`,
	`[class*="side_menu"]`,
	`[class*="sticky"]`,
	`[class*="toast"]`,
	`[class*="cookie"]`,
	`[class*="consent"]`,
	`[class*="chat"]`,
	`[role="dialog"]`,
	`[aria-modal="true"]`,
	`.dim`,
	`.dimmed`,
	`.backdrop`,
}

// CloseControlSelectors locate dismissible dialog close controls. Activation
// failures per element are swallowed.
var CloseControlSelectors = []string{
	`[class*="close"]`,
	`[id*="close"]`,
	`[aria-label*="close"]`,
	`[aria-label*="Close"]`,
	`.btn-close`,
	`.btn_close`,
	`[class*="dismiss"]`,
}
