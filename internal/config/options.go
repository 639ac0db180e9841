package config

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/supportbot/internal/model/knowledge"
)

// Positions a widget can be anchored to.
const (
	BottomRight = "bottom-right"
	BottomLeft  = "bottom-left"
	TopRight    = "top-right"
	TopLeft     = "top-left"
)

// Options 是单个组件实例的完整配置快照。字段名与嵌入脚本的配置键保持一致。
type Options struct {
	// Appearance
	Theme           string `json:"theme" yaml:"theme"`
	PrimaryColor    string `json:"primaryColor" yaml:"primaryColor"`
	PrimaryHover    string `json:"primaryHover" yaml:"primaryHover"`
	BackgroundColor string `json:"backgroundColor" yaml:"backgroundColor"`
	TextColor       string `json:"textColor" yaml:"textColor"`
	BotBubbleColor  string `json:"botBubbleColor" yaml:"botBubbleColor"`
	UserBubbleColor string `json:"userBubbleColor" yaml:"userBubbleColor"`
	UserTextColor   string `json:"userTextColor" yaml:"userTextColor"`

	// Position
	Position string `json:"position" yaml:"position"`
	Bottom   int    `json:"bottom" yaml:"bottom"`
	Right    int    `json:"right" yaml:"right"`
	Top      int    `json:"top" yaml:"top"`
	Left     int    `json:"left" yaml:"left"`

	// Dimensions
	Width      int `json:"width" yaml:"width"`
	Height     int `json:"height" yaml:"height"`
	ButtonSize int `json:"buttonSize" yaml:"buttonSize"`

	// Text
	WelcomeMessage string `json:"welcomeMessage" yaml:"welcomeMessage"`
	Placeholder    string `json:"placeholder" yaml:"placeholder"`
	StatusText     string `json:"statusText" yaml:"statusText"`
	Title          string `json:"title" yaml:"title"`

	// Behavior
	AutoOpen        bool     `json:"autoOpen" yaml:"autoOpen"`
	ShowBadge       bool     `json:"showBadge" yaml:"showBadge"`
	BadgeText       string   `json:"badgeText" yaml:"badgeText"`
	ShowSuggestions bool     `json:"showSuggestions" yaml:"showSuggestions"`
	Suggestions     []string `json:"suggestions" yaml:"suggestions"`

	// Remote endpoint
	APIEndpoint string            `json:"apiEndpoint" yaml:"apiEndpoint"`
	APIKey      string            `json:"apiKey" yaml:"apiKey"`
	APIHeaders  map[string]string `json:"apiHeaders" yaml:"apiHeaders"`

	// Timing, in milliseconds
	ResponseDelay  int `json:"responseDelay" yaml:"responseDelay"`
	ResponseJitter int `json:"responseJitter" yaml:"responseJitter"`

	// Styling
	CustomCSS         string `json:"customCSS" yaml:"customCSS"`
	BorderRadius      int    `json:"borderRadius" yaml:"borderRadius"`
	Shadow            string `json:"shadow" yaml:"shadow"`
	ShowAvatar        bool   `json:"showAvatar" yaml:"showAvatar"`
	BotAvatar         string `json:"botAvatar" yaml:"botAvatar"`
	UserAvatar        string `json:"userAvatar" yaml:"userAvatar"`
	Animations        bool   `json:"animations" yaml:"animations"`
	AnimationDuration int    `json:"animationDuration" yaml:"animationDuration"`
	ZIndex            int    `json:"zIndex" yaml:"zIndex"`

	// Persistence
	EnableLocalStorage bool   `json:"enableLocalStorage" yaml:"enableLocalStorage"`
	StorageKey         string `json:"storageKey" yaml:"storageKey"`
	MaxMessages        int    `json:"maxMessages" yaml:"maxMessages"`

	KnowledgeBase knowledge.Base     `json:"knowledgeBase" yaml:"knowledgeBase"`
	Keywords      knowledge.Keywords `json:"keywords" yaml:"keywords"`
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		Theme:           "light",
		PrimaryColor:    "#646cff",
		PrimaryHover:    "#535bf2",
		BackgroundColor: "#ffffff",
		TextColor:       "#1a1a1a",
		BotBubbleColor:  "#f0f0f0",
		UserBubbleColor: "#646cff",
		UserTextColor:   "#ffffff",

		Position: BottomRight,
		Bottom:   20,
		Right:    20,
		Top:      20,
		Left:     20,

		Width:      380,
		Height:     600,
		ButtonSize: 60,

		WelcomeMessage: "Hello! 👋 I'm your AI support assistant. How can I help you today?",
		Placeholder:    "Type your message...",
		StatusText:     "Online",
		Title:          "AI Support Assistant",

		AutoOpen:        false,
		ShowBadge:       true,
		BadgeText:       "1",
		ShowSuggestions: true,
		Suggestions: []string{
			"What are your hours?",
			"Contact support",
			"Pricing information",
		},

		APIHeaders: map[string]string{},

		ResponseDelay:  800,
		ResponseJitter: 1200,

		BorderRadius:      20,
		Shadow:            "0 8px 30px rgba(0, 0, 0, 0.2)",
		ShowAvatar:        true,
		Animations:        true,
		AnimationDuration: 300,
		ZIndex:            9999,

		EnableLocalStorage: true,
		StorageKey:         "ai-chatbot-messages",
		MaxMessages:        50,

		KnowledgeBase: knowledge.Seed(),
		Keywords:      knowledge.SeedKeywords(),
	}
}

// Resolve merges overrides over the stock defaults.
func Resolve(overrides map[string]any) Options {
	return DefaultOptions().Merge(overrides)
}

// Merge returns a new snapshot with overrides applied on top of o. An
// override whose value does not fit the option's type is dropped and the
// previous value kept; configuration problems are logged, never returned.
func (o Options) Merge(overrides map[string]any) Options {
	current, err := o.toMap()
	if err != nil {
		log.Error().Err(err).Msg("config: snapshot encode failed, keeping previous options")
		return o.clone()
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		candidate := Merge(current, map[string]any{k: overrides[k]})
		if _, err := decodeOptions(candidate); err != nil {
			log.Warn().Err(err).Str("option", k).Msg("config: ignoring invalid override")
			continue
		}
		current = candidate
	}

	resolved, err := decodeOptions(current)
	if err != nil {
		log.Error().Err(err).Msg("config: merged options decode failed, keeping previous options")
		return o.clone()
	}
	resolved.normalize()
	return resolved
}

// ServerOnlyKeys are options that make the server call out to another host.
// Only server-side configuration may set them.
var ServerOnlyKeys = []string{"apiEndpoint", "apiKey", "apiHeaders"}

// StripServerOnly returns a copy of overrides without ServerOnlyKeys, plus
// the keys that were removed.
func StripServerOnly(overrides map[string]any) (map[string]any, []string) {
	out := make(map[string]any, len(overrides))
	for k, v := range overrides {
		out[k] = v
	}
	var dropped []string
	for _, k := range ServerOnlyKeys {
		if _, ok := out[k]; ok {
			delete(out, k)
			dropped = append(dropped, k)
		}
	}
	return out, dropped
}

// ToMap exposes the snapshot in the same shape overrides are written in.
func (o Options) ToMap() map[string]any {
	m, err := o.toMap()
	if err != nil {
		log.Error().Err(err).Msg("config: snapshot encode failed")
		return map[string]any{}
	}
	return m
}

// ResponseDelayDuration is the minimum visible thinking time.
func (o Options) ResponseDelayDuration() time.Duration {
	return time.Duration(o.ResponseDelay) * time.Millisecond
}

// ResponseJitterDuration is the exclusive upper bound of the random extra delay.
func (o Options) ResponseJitterDuration() time.Duration {
	return time.Duration(o.ResponseJitter) * time.Millisecond
}

// RemoteEnabled 表示是否配置了远端回复接口。
func (o Options) RemoteEnabled() bool {
	return o.APIEndpoint != ""
}

func (o Options) toMap() (map[string]any, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return nil, errors.Wrap(err, "marshal options")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "unmarshal options map")
	}
	return m, nil
}

func (o Options) clone() Options {
	out := o
	out.Suggestions = append([]string(nil), o.Suggestions...)
	out.APIHeaders = make(map[string]string, len(o.APIHeaders))
	for k, v := range o.APIHeaders {
		out.APIHeaders[k] = v
	}
	out.KnowledgeBase = o.KnowledgeBase.Clone()
	out.Keywords = o.Keywords.Clone()
	return out
}

// normalize clamps values the widget can't operate with.
func (o *Options) normalize() {
	switch o.Position {
	case BottomRight, BottomLeft, TopRight, TopLeft:
	default:
		o.Position = BottomRight
	}
	if o.ResponseDelay < 0 {
		o.ResponseDelay = 0
	}
	if o.ResponseJitter < 0 {
		o.ResponseJitter = 0
	}
	if o.MaxMessages < 1 {
		o.MaxMessages = 1
	}
	if o.APIHeaders == nil {
		o.APIHeaders = map[string]string{}
	}
	if o.KnowledgeBase == nil {
		o.KnowledgeBase = knowledge.Base{}
	}
	if o.Keywords == nil {
		o.Keywords = knowledge.Keywords{}
	}
}

func decodeOptions(m map[string]any) (Options, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return Options{}, errors.Wrap(err, "marshal merged options")
	}
	var out Options
	if err := json.Unmarshal(raw, &out); err != nil {
		return Options{}, errors.Wrap(err, "decode merged options")
	}
	return out, nil
}

// LoadOverrides 从 YAML 文件读取组件配置覆盖项。path 为空时返回空映射。
func LoadOverrides(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read widget config %s", path)
	}

	overrides := map[string]any{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, errors.Wrapf(err, "parse widget config %s", path)
	}
	return overrides, nil
}
