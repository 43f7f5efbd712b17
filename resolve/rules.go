package resolve

import (
	"strings"

	"github.com/hazyhaar/chatcast/dom"
)

// Rule is one entry of a resolution cascade. Rules with equal Priority are
// ranked against each other by match count, distance and document order.
type Rule struct {
	Selector string
	Priority int
	// Match filters elements the selector matched; nil keeps all of them.
	Match func(dom.Element) bool
	// Name labels the rule in reports when Match makes Selector ambiguous.
	Name string
}

func (r Rule) label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Selector
}

// Priority bands, highest first.
const (
	PriorityConfigured = 1000
	PriorityID         = 100
	PriorityTestID     = 90
	PriorityAriaLabel  = 85
	PriorityTypeSubmit = 80
	PriorityTitle      = 75
	PriorityRole       = 70
	PriorityFramework  = 60
	PriorityEditable   = 45
	PriorityEditAny    = 42
	PriorityStructural = 40
	PriorityTextInput  = 35
)

// InputRules locate the message composer.
var InputRules = []Rule{
	{Selector: "#prompt-textarea", Priority: PriorityID},
	{Selector: "#chat-input", Priority: PriorityID},
	{Selector: "#message-input", Priority: PriorityID},
	{Selector: "#input", Priority: PriorityID},
	{Selector: "#textarea", Priority: PriorityID},

	{Selector: "textarea[data-id]", Priority: PriorityTestID},
	{Selector: `[data-testid*="input"]`, Priority: PriorityTestID},
	{Selector: `[data-testid*="textarea"]`, Priority: PriorityTestID},
	{Selector: `[data-testid*="composer"]`, Priority: PriorityTestID},

	{Selector: "textarea[aria-label]", Priority: PriorityAriaLabel},
	{Selector: `[contenteditable="true"][aria-label]`, Priority: PriorityAriaLabel},
	{Selector: "textarea[placeholder]", Priority: PriorityAriaLabel},

	{Selector: `[contenteditable="true"][role="textbox"]`, Priority: PriorityRole},
	{Selector: "[role=textbox][contenteditable]", Priority: PriorityRole},
	{Selector: `textarea[role="textbox"]`, Priority: PriorityRole},

	{Selector: ".ql-editor", Priority: PriorityFramework},
	{Selector: `[class*="ql-editor"]`, Priority: PriorityFramework},
	{Selector: ".ProseMirror", Priority: PriorityFramework},
	{Selector: `[class*="ProseMirror"]`, Priority: PriorityFramework},

	// Structural fallbacks keep a strict order: a text field elsewhere on
	// the page must never outrank the composer.
	{Selector: `div[contenteditable="true"]`, Priority: PriorityEditable},
	{Selector: `[contenteditable="true"]`, Priority: PriorityEditAny},
	{Selector: "textarea", Priority: PriorityStructural},
	{Selector: `input[type="text"]`, Priority: PriorityTextInput},
}

// SendWords are labels that identify a send control.
var SendWords = []string{"send", "submit", "发送", "提交"}

// SendRules locate the send control.
var SendRules = []Rule{
	{Selector: `button[data-testid*="send"]`, Priority: PriorityTestID},
	{Selector: `button[data-testid*="submit"]`, Priority: PriorityTestID},

	{Selector: `button[aria-label*="Send"]`, Priority: PriorityAriaLabel},
	{Selector: `button[aria-label*="send"]`, Priority: PriorityAriaLabel},
	{Selector: `button[aria-label*="发送"]`, Priority: PriorityAriaLabel},
	{Selector: `button[aria-label*="Submit"]`, Priority: PriorityAriaLabel},
	{Selector: `button[aria-label*="提交"]`, Priority: PriorityAriaLabel},

	{Selector: `button[type="submit"]`, Priority: PriorityTypeSubmit},
	{Selector: `input[type="submit"]`, Priority: PriorityTypeSubmit},

	{Selector: `button[title*="Send"]`, Priority: PriorityTitle},
	{Selector: `button[title*="发送"]`, Priority: PriorityTitle},

	{Selector: `[role="button"][aria-label*="Send"]`, Priority: PriorityRole},
	{Selector: `[role="button"][aria-label*="发送"]`, Priority: PriorityRole},

	{Selector: `button[class*="send"]`, Priority: PriorityFramework},
	{Selector: `button[class*="Send"]`, Priority: PriorityFramework},
	{Selector: `button[class*="submit"]`, Priority: PriorityFramework},
	{Selector: `button:has(svg[data-icon*="send"])`, Priority: PriorityFramework},
	{Selector: `button:has(svg[data-icon*="paper-plane"])`, Priority: PriorityFramework},

	{Selector: "button", Priority: PriorityStructural, Match: LabelMatches(SendWords), Name: "button (send label)"},
}

// DenyWords mark controls that must never be clicked as a send control.
var DenyWords = []string{
	"new chat", "login", "log in", "sign in", "sign up", "logout", "log out",
	"delete", "remove", "settings", "menu", "share", "copy", "edit",
	"upload", "attach", "voice", "microphone", "stop",
	"新对话", "新建", "登录", "注册", "删除", "设置", "分享", "复制", "上传",
}

// Clickable matches elements the proximity search considers.
const Clickable = `button, [role="button"], input[type="submit"], input[type="button"], a[href], [onclick]`

// LabelMatches returns a predicate that accepts elements whose accessible
// label contains one of words, case-insensitively.
func LabelMatches(words []string) func(dom.Element) bool {
	return func(el dom.Element) bool {
		return containsAny(strings.ToLower(dom.Label(el)), words)
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
