package cdpcontrol

import "strconv"

// DefaultRewardSelector matches the activity cards on the rewards dashboard.
const DefaultRewardSelector = "#more-activities a.ds-card-sec"

// rewardLinksGlobal holds the collected NodeList between evaluations so each
// click targets the element seen at collection time.
const rewardLinksGlobal = "window.__rewardRunnerLinks"

// JSCollectRewardLinks snapshots every element matching selector in DOM order.
func JSCollectRewardLinks(selector string) string {
	return wrapJSEval(`
var nodes = document.querySelectorAll(` + jsString(selector) + `);
` + rewardLinksGlobal + ` = Array.prototype.slice.call(nodes);
var hrefs = [];
for (var i = 0; i < nodes.length; i++) {
  hrefs.push(String(nodes[i].href || nodes[i].getAttribute("href") || ""));
}
` + jsOK(`{count: nodes.length, hrefs: hrefs}`))
}

// JSClickRewardLink clicks the element at index from the last collection.
func JSClickRewardLink(index int) string {
	idx := strconv.Itoa(index)
	return wrapJSEval(`
var links = ` + rewardLinksGlobal + `;
if (!links || !links[` + idx + `]) {
  ` + jsFail(CodeElementNotFound, `"reward link `+idx+` is no longer available"`) + `
}
links[` + idx + `].click();
` + jsOK(`{index: `+idx+`}`))
}
