package suppress

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Report is what a successful suppression pass returns from the page.
type Report struct {
	Hidden    int `json:"hidden"`
	Dismissed int `json:"dismissed"`
}

type envelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// ParseReport decodes the JSON envelope returned by the in-page script. A
// script-side failure comes back as an error value here, never as a thrown
// exception crossing the page boundary.
func ParseReport(raw string) (Report, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Report{}, fmt.Errorf("invalid suppression envelope: %w", err)
	}
	if !env.OK {
		msg := env.ErrorMessage
		if msg == "" {
			msg = "suppression script failed"
		}
		return Report{}, fmt.Errorf("suppression script: %s", msg)
	}
	var rep Report
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &rep); err != nil {
			return Report{}, fmt.Errorf("invalid suppression data: %w", err)
		}
	}
	return rep, nil
}

// Script returns the complete in-page suppression program as a single
// expression. Three idempotent passes over the DOM, a best-effort close
// control sweep, and a scroll-lock reset.
func Script() string {
	body := fmt.Sprintf(jsSuppressBody,
		jsJSON(NavAllowTags),
		jsJSON(NavAllowTokens),
		jsJSON(OverlayDenyTokens),
		HighZIndexThreshold,
		jsString(strings.Join(OverlaySelectors, ", ")),
		CornerMaxWidthPx,
		CornerMaxHeightPx,
		CornerEdgeMarginPx,
		jsString(strings.Join(CloseControlSelectors, ", ")),
	)
	return wrapJSEval(body)
}

const jsSuppressBody = `
var navTags = %s;
var navTokens = %s;
var denyTokens = %s;
var zThreshold = %d;
var overlaySelectors = %s;
var cornerMaxW = %d, cornerMaxH = %d, cornerMargin = %d;
var closeSelectors = %s;

var vw = window.innerWidth, vh = window.innerHeight;
var hidden = 0;

function tokensOf(el) {
  var cls = typeof el.className === "string" ? el.className : "";
  var id = el.id || "";
  return (cls + " " + id).toLowerCase();
}
function hasAny(str, list) {
  for (var i = 0; i < list.length; i++) {
    if (str.indexOf(list[i]) !== -1) return true;
  }
  return false;
}
function isNavigation(el, tokens) {
  var tag = el.tagName ? el.tagName.toLowerCase() : "";
  if (navTags.indexOf(tag) !== -1) return true;
  return hasAny(tokens, navTokens);
}
function isStructuralRoot(el) {
  return el === document.documentElement || el === document.body || el === document.head;
}
function isSuppressed(el) {
  var cs = window.getComputedStyle(el);
  return cs.display === "none" || cs.visibility === "hidden";
}
function suppress(el) {
  if (isSuppressed(el)) return;
  el.style.setProperty("visibility", "hidden", "important");
  el.style.setProperty("display", "none", "important");
  hidden++;
}

// Pass A: positional + lexical scoring over every element.
var all = document.querySelectorAll("*");
for (var a = 0; a < all.length; a++) {
  var el = all[a];
  if (isStructuralRoot(el)) continue;
  var cs = window.getComputedStyle(el);
  if (cs.position !== "fixed" && cs.position !== "sticky") continue;
  var tokens = tokensOf(el);
  if (isNavigation(el, tokens)) continue;
  var z = parseInt(cs.zIndex, 10);
  if (isNaN(z)) z = 0;
  if (hasAny(tokens, denyTokens) || z > zThreshold) suppress(el);
}

// Pass B: selector + geometry sweep. Broader than pass A; catches elements
// without lexical or z-index signals.
var matched = document.querySelectorAll(overlaySelectors);
for (var b = 0; b < matched.length; b++) {
  var mEl = matched[b];
  if (isStructuralRoot(mEl)) continue;
  var rect = mEl.getBoundingClientRect();
  if (rect.width > vw * 0.5 || rect.height > vh * 0.5) {
    suppress(mEl);
    continue;
  }
  var mcs = window.getComputedStyle(mEl);
  if (mcs.position === "fixed" || mcs.position === "sticky") suppress(mEl);
}

// Pass C: small fixed/sticky elements anchored to a bottom corner
// (floating chat/contact buttons with no identifying tokens).
for (var c = 0; c < all.length; c++) {
  var cEl = all[c];
  if (isStructuralRoot(cEl)) continue;
  var ccs = window.getComputedStyle(cEl);
  if (ccs.position !== "fixed" && ccs.position !== "sticky") continue;
  var cr = cEl.getBoundingClientRect();
  if (cr.width === 0 || cr.height === 0) continue;
  if (cr.width > cornerMaxW || cr.height > cornerMaxH) continue;
  var nearBottom = vh - cr.bottom <= cornerMargin;
  var nearRight = vw - cr.right <= cornerMargin;
  var nearLeft = cr.left <= cornerMargin;
  if (nearBottom && (nearRight || nearLeft)) suppress(cEl);
}

// Dismiss dismissible dialogs via their close controls. A non-clickable or
// already-removed control must not abort the sweep.
var dismissed = 0;
var closers = document.querySelectorAll(closeSelectors);
for (var d = 0; d < closers.length; d++) {
  try {
    closers[d].click();
    dismissed++;
  } catch (_) {}
}

// Undo any scroll lock a dismissed or suppressed modal left behind.
document.documentElement.style.overflow = "auto";
document.body.style.overflow = "auto";

return JSON.stringify({ok: true, data: {hidden: hidden, dismissed: dismissed}});
`

func jsString(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func jsJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func wrapJSEval(body string) string {
	return `(function(){
try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"SCRIPT_ERROR",error_message:String(err && err.message || err)});
}
})()`
}
