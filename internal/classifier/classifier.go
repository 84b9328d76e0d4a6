package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/hitome/internal/models"
)

// DefaultDangerWords force manual review whenever they appear in a message
var DefaultDangerWords = []string{
	"食中毒", "警察", "訴える", "弁護士", "薬", "副作用",
	"返金", "炎上", "個人情報", "訴訟", "クレーム", "詐欺",
	"被害", "通報", "騙された", "最悪", "二度と行かない",
}

const (
	summaryDanger  = "クレーム疑い。慎重な対応が必要です。"
	intentDanger   = "クレーム疑い"
	noticeDanger   = "※危険ワード検出。自動返信は停止しました。手動での対応をお願いします。"
	noticeLowScore = "※低評価のため自動返信しません。丁寧な個別対応をご検討ください。"

	googleSummaryRunes = 50
)

type Classifier interface {
	Analyze(ctx context.Context, in Input) Analysis
}

// Input is everything the rules look at for one inbound item
type Input struct {
	Text    string
	Channel models.Channel
	// Rating is the Google star rating, 0 when absent
	Rating      int
	StoreName   string
	Tone        models.Tone
	Hours       models.BusinessHours
	DangerWords []string
}

// InputFor builds an Input carrying the store's reply settings
func InputFor(store *models.Store, channel models.Channel, text string, rating int, dangerWords []string) Input {
	return Input{
		Text:        text,
		Channel:     channel,
		Rating:      rating,
		StoreName:   store.DisplayName(),
		Tone:        store.Tone,
		Hours:       store.BusinessHours,
		DangerWords: dangerWords,
	}
}

// Analysis is the classification result attached to a thread
type Analysis struct {
	Tags           []models.Tag        `json:"tags"`
	Summary        string              `json:"summary"`
	Intent         string              `json:"intent"`
	SuggestedReply string              `json:"suggested_reply"`
	AutoReply      string              `json:"auto_reply"`
	HasDangerWord  bool                `json:"has_danger_word"`
	Status         models.ThreadStatus `json:"status"`
}

type tagRule struct {
	tag      models.Tag
	keywords []string
}

var tagRules = []tagRule{
	{models.TagReservation, []string{"予約", "予定"}},
	{models.TagLocation, []string{"場所", "住所", "アクセス"}},
	{models.TagHours, []string{"営業時間", "何時", "いつ"}},
	{models.TagParking, []string{"駐車", "パーキング"}},
	{models.TagMenu, []string{"メニュー", "料金", "価格"}},
	{models.TagQuestion, []string{"質問", "教えて", "知りたい"}},
}

type phraseRule struct {
	keywords []string
	phrase   string
}

var lineSummaries = []phraseRule{
	{[]string{"予約"}, "予約の問い合わせ。日時・人数の確認が必要"},
	{[]string{"営業時間"}, "営業時間についての質問"},
	{[]string{"場所", "住所"}, "店舗の場所・アクセスについての質問"},
	{[]string{"駐車"}, "駐車場についての問い合わせ"},
	{[]string{"メニュー", "料金"}, "料金・メニューについての質問"},
}

var lineIntents = []phraseRule{
	{[]string{"予約"}, "予約希望"},
	{[]string{"営業時間"}, "営業時間の質問"},
	{[]string{"場所"}, "場所の質問"},
	{[]string{"駐車"}, "駐車場の質問"},
}

// RuleClassifier is the deterministic keyword classifier
type RuleClassifier struct {
	dangerWords []string
}

// NewRuleClassifier returns a classifier using DefaultDangerWords plus extra global words
func NewRuleClassifier(extra ...string) *RuleClassifier {
	words := make([]string, 0, len(DefaultDangerWords)+len(extra))
	words = append(words, DefaultDangerWords...)
	for _, w := range extra {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return &RuleClassifier{dangerWords: words}
}

func (c *RuleClassifier) Analyze(_ context.Context, in Input) Analysis {
	danger := c.HasDangerWords(in.Text, in.DangerWords)
	suggested := c.suggestedReply(in, danger)

	return Analysis{
		Tags:           c.extractTags(in, danger),
		Summary:        summary(in, danger),
		Intent:         intent(in, danger),
		SuggestedReply: suggested,
		AutoReply:      autoReply(in, danger, suggested),
		HasDangerWord:  danger,
		Status:         initialStatus(in, danger),
	}
}

// HasDangerWords reports whether text contains a default, global or extra danger word
func (c *RuleClassifier) HasDangerWords(text string, extra []string) bool {
	for _, w := range c.dangerWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	for _, w := range extra {
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func (c *RuleClassifier) extractTags(in Input, danger bool) []models.Tag {
	tags := make([]models.Tag, 0, 4)
	for _, rule := range tagRules {
		if containsAny(in.Text, rule.keywords) {
			tags = append(tags, rule.tag)
		}
	}
	if in.Channel == models.ChannelGoogle && isLowRating(in.Rating) {
		tags = append(tags, models.TagLowRating)
	}
	if danger {
		tags = append(tags, models.TagDanger)
	}
	if len(tags) == 0 {
		return []models.Tag{models.TagQuestion}
	}
	return tags
}

func summary(in Input, danger bool) string {
	if danger {
		return summaryDanger
	}
	if in.Channel == models.ChannelGoogle {
		runes := []rune(in.Text)
		if len(runes) > googleSummaryRunes {
			return string(runes[:googleSummaryRunes]) + "..."
		}
		return in.Text
	}
	return firstPhrase(in.Text, lineSummaries, "一般的な問い合わせ。内容確認が必要")
}

func intent(in Input, danger bool) string {
	if danger {
		return intentDanger
	}
	if in.Channel == models.ChannelGoogle {
		switch {
		case in.Rating > 0 && in.Rating <= 2:
			return "低評価"
		case in.Rating == 3:
			return "中評価"
		default:
			return "高評価"
		}
	}
	return firstPhrase(in.Text, lineIntents, "一般質問")
}

func (c *RuleClassifier) suggestedReply(in Input, danger bool) string {
	if danger {
		return noticeDanger
	}

	name := in.StoreName
	if name == "" {
		name = "当店"
	}

	if in.Channel == models.ChannelGoogle {
		if in.Rating == 0 {
			return ""
		}
		if isLowRating(in.Rating) {
			return noticeLowScore
		}
		return byTone(in.Tone,
			fmt.Sprintf("この度は%sをご利用いただき誠にありがとうございます。お客様からの温かいお言葉を励みに、今後もより良いサービスをご提供できるよう努めてまいります。またのご来店を心よりお待ち申し上げております。", name),
			fmt.Sprintf("%sをご利用いただきありがとうございます。高評価をいただき大変嬉しく思います。またのご来店をお待ちしております。", name),
			fmt.Sprintf("%sをご利用いただきありがとうございます！嬉しいお言葉をいただき、スタッフ一同大変励みになります。またぜひお待ちしています！", name),
		)
	}

	switch {
	case strings.Contains(in.Text, "予約"):
		return byTone(in.Tone,
			"ご予約のお問い合わせありがとうございます。ご希望の日時、お人数、ご希望のメニューをお教えいただけますでしょうか。",
			"ご予約ありがとうございます。希望の日時、人数、メニューを教えてください。",
			"ご予約ありがとうございます！希望の日時・人数・メニューを教えてください😊",
		)
	case strings.Contains(in.Text, "営業時間"):
		hours := formatHours(in.Hours)
		return byTone(in.Tone,
			fmt.Sprintf("お問い合わせありがとうございます。営業時間は%sでございます。何かご不明な点がございましたらお気軽にお尋ねください。", hours),
			fmt.Sprintf("営業時間は%sです。よろしくお願いいたします。", hours),
			fmt.Sprintf("営業時間は%sです！お待ちしています😊", hours),
		)
	case containsAny(in.Text, []string{"場所", "住所"}):
		return byTone(in.Tone,
			"お問い合わせありがとうございます。店舗の住所・アクセス情報はプロフィールをご確認ください。ご不明な点がございましたらお気軽にお尋ねください。",
			"店舗の場所はプロフィール欄をご確認ください。不明点があればお知らせください。",
			"場所はプロフィール欄に載せています！わからないことがあれば聞いてくださいね😊",
		)
	}
	return byTone(in.Tone,
		"お問い合わせいただきありがとうございます。詳しい内容をお伺いしてもよろしいでしょうか。",
		"お問い合わせありがとうございます。詳しい内容を教えてください。",
		"お問い合わせありがとうございます！もう少し詳しく教えてもらえますか？😊",
	)
}

// autoReply is the text that may be sent without a human. Empty means "do not send".
func autoReply(in Input, danger bool, suggested string) string {
	if danger {
		return ""
	}
	if in.Channel == models.ChannelGoogle && (in.Rating == 0 || isLowRating(in.Rating)) {
		return ""
	}
	return suggested
}

func initialStatus(in Input, danger bool) models.ThreadStatus {
	if danger {
		return models.StatusReview
	}
	if in.Channel == models.ChannelGoogle && isLowRating(in.Rating) {
		return models.StatusReview
	}
	return models.StatusUnhandled
}

func isLowRating(rating int) bool {
	return rating > 0 && rating <= 3
}

func byTone(tone models.Tone, polite, standard, casual string) string {
	switch tone {
	case models.TonePolite:
		return polite
	case models.ToneCasual:
		return casual
	default:
		return standard
	}
}

func formatHours(h models.BusinessHours) string {
	start, end := h.Start, h.End
	if start == "" {
		start = "09:00"
	}
	if end == "" {
		end = "21:00"
	}
	return start + "〜" + end
}

func firstPhrase(text string, rules []phraseRule, fallback string) string {
	for _, rule := range rules {
		if containsAny(text, rule.keywords) {
			return rule.phrase
		}
	}
	return fallback
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
