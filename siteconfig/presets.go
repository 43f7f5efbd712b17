package siteconfig

import (
	"context"
	"sort"
)

const presetVersion = "1.0"

var presets = map[string]SiteConfig{
	"chat_deepseek_com": {
		Name:          "DeepSeek",
		InputSelector: "textarea",
		Notes:         "DeepSeek submits on Enter; the send control is an unlabelled div.",
	},
	"chatgpt_com": {
		Name:               "ChatGPT",
		InputSelector:      "#prompt-textarea",
		SendButtonSelector: `button[data-testid="send-button"]`,
		Notes:              "ChatGPT composer is a ProseMirror editor with id prompt-textarea.",
	},
	"gemini_google_com": {
		Name:               "Gemini",
		InputSelector:      ".ql-editor",
		SendButtonSelector: `button[aria-label*="Send"]`,
		Notes:              "Gemini uses a Quill editor.",
	},
	"claude_ai": {
		Name:               "Claude",
		InputSelector:      `div[contenteditable="true"]`,
		SendButtonSelector: `button[aria-label*="Send"]`,
		Notes:              "Claude composer is a ProseMirror contenteditable.",
	},
	"tongyi_aliyun_com": {
		Name:               "Tongyi Qianwen",
		InputSelector:      `textarea[placeholder*="输入"]`,
		SendButtonSelector: `button[type="submit"]`,
	},
	"yiyan_baidu_com": {
		Name:               "ERNIE Bot",
		InputSelector:      "textarea",
		SendButtonSelector: `button[type="submit"]`,
	},
	"kimi_moonshot_cn": {
		Name:               "Kimi",
		InputSelector:      "textarea",
		SendButtonSelector: `button[type="submit"]`,
	},
	"doubao_com": {
		Name:               "Doubao",
		InputSelector:      `textarea[placeholder*="输入"]`,
		SendButtonSelector: `button[aria-label*="发送"]`,
	},
	"poe_com": {
		Name:               "Poe",
		InputSelector:      `textarea[class*="ChatMessageInput"]`,
		SendButtonSelector: `button[class*="ChatMessageSendButton"]`,
	},
	"perplexity_ai": {
		Name:               "Perplexity",
		InputSelector:      `textarea[placeholder*="Ask"]`,
		SendButtonSelector: `button[aria-label*="Submit"]`,
	},
	"you_com": {
		Name:               "You.com",
		InputSelector:      `textarea[name="query"]`,
		SendButtonSelector: `button[type="submit"]`,
	},
	"huggingface_co": {
		Name:               "HuggingChat",
		InputSelector:      `textarea[name="message"]`,
		SendButtonSelector: `button[type="submit"]`,
	},
}

// Preset returns the bundled configuration for id.
func Preset(id string) (*SiteConfig, bool) {
	p, ok := presets[id]
	if !ok {
		return nil, false
	}
	p.ID = id
	p.Version = presetVersion
	p.Source = "preset"
	return &p, true
}

// Presets lists every bundled configuration, sorted by id.
func Presets() []*SiteConfig {
	ids := make([]string, 0, len(presets))
	for id := range presets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*SiteConfig, 0, len(ids))
	for _, id := range ids {
		p, _ := Preset(id)
		out = append(out, p)
	}
	return out
}

// PresetSource serves presets only.
type PresetSource struct{}

// Lookup implements Source.
func (PresetSource) Lookup(_ context.Context, id string) (*SiteConfig, error) {
	p, _ := Preset(id)
	return p, nil
}

// Chain consults each source in order and returns the first hit.
type Chain []Source

// Lookup implements Source. A failing source is skipped only if a later
// source answers; otherwise its error is returned.
func (c Chain) Lookup(ctx context.Context, id string) (*SiteConfig, error) {
	var firstErr error
	for _, s := range c {
		cfg, err := s.Lookup(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if cfg != nil {
			return cfg, nil
		}
	}
	return nil, firstErr
}
