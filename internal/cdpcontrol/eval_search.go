package cdpcontrol

// Submit strategy kinds, tried in the order given.
const (
	SubmitClick = "click"
	SubmitForm  = "form"
	SubmitEnter = "enter"
)

// SubmitStrategy is one way of submitting a filled search box.
type SubmitStrategy struct {
	Kind     string `json:"kind"`
	Selector string `json:"selector,omitempty"`
}

// DefaultInputSelectors are the search box lookups, highest priority first.
var DefaultInputSelectors = []string{
	"#sb_form_q",
	`input[name="q"]`,
	`input[type="search"]`,
	"input.b_searchbox",
	"#searchbox",
}

// DefaultSubmitStrategies mirror the search page's own controls before
// falling back to a synthetic Enter key.
var DefaultSubmitStrategies = []SubmitStrategy{
	{Kind: SubmitClick, Selector: "#search_icon"},
	{Kind: SubmitClick, Selector: `button[type="submit"]`},
	{Kind: SubmitClick, Selector: "#sb_form_go"},
	{Kind: SubmitForm, Selector: "#sb_form"},
	{Kind: SubmitForm, Selector: "form"},
	{Kind: SubmitEnter},
}

// JSFillSearch locates the first matching search input, replaces its value
// with term and notifies page listeners with a bubbling input event.
func JSFillSearch(term string, selectors []string) string {
	return wrapJSEval(`
var sels = ` + jsJSON(selectors) + `;
var input = null;
var matched = "";
for (var i = 0; i < sels.length; i++) {
  var el = document.querySelector(sels[i]);
  if (el) { input = el; matched = sels[i]; break; }
}
if (!input) {
  ` + jsFail(CodeElementNotFound, `"could not find search input field"`) + `
}
input.value = "";
input.focus();
input.value = ` + jsString(term) + `;
input.dispatchEvent(new Event("input", {bubbles: true}));
` + jsOK(`{selector: matched, value: String(input.value)}`))
}

// JSSubmitSearch submits the search box found at inputSelector using the
// first strategy the page supports.
func JSSubmitSearch(inputSelector string, strategies []SubmitStrategy) string {
	return wrapJSEval(`
var input = document.querySelector(` + jsString(inputSelector) + `);
var strategies = ` + jsJSON(strategies) + `;
for (var i = 0; i < strategies.length; i++) {
  var s = strategies[i];
  if (s.kind === "` + SubmitClick + `") {
    var btn = document.querySelector(s.selector);
    if (btn) {
      btn.click();
      ` + jsOK(`{method: s.kind, selector: s.selector}`) + `
    }
  } else if (s.kind === "` + SubmitForm + `") {
    var form = document.querySelector(s.selector);
    if (form && typeof form.submit === "function") {
      form.submit();
      ` + jsOK(`{method: s.kind, selector: s.selector}`) + `
    }
  } else if (s.kind === "` + SubmitEnter + `") {
    if (input) {
      input.dispatchEvent(new KeyboardEvent("keydown", {key: "Enter", code: "Enter", keyCode: 13, which: 13, bubbles: true}));
      ` + jsOK(`{method: s.kind}`) + `
    }
  }
}
` + jsFail(CodeElementNotFound, `"no submit control available"`))
}
