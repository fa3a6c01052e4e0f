package features

import (
	"context"
	"fmt"
	"sort"

	"github.com/keepmind9/guildbot/internal/registry"
)

// keywordReplies maps a positive word to reply templates. %[1]s is the
// author mention.
var keywordReplies = map[string][]string{
	// Excitement words
	"wow":         {"Wow %[1]s! 😲", "Amazing %[1]s! ✨", "That's awesome %[1]s! 🎉"},
	"woah":        {"Woah %[1]s! 😲", "Wow %[1]s! ✨"},
	"whoa":        {"Whoa %[1]s! 😲", "Amazing %[1]s! ✨"},
	"amazing":     {"Amazing %[1]s! ✨", "You're amazing too %[1]s! 🌟"},
	"awesome":     {"Awesome %[1]s! 🔥", "You're awesome too %[1]s! 😎"},
	"fantastic":   {"Fantastic %[1]s! 🌈", "That's fantastic %[1]s! 🎊"},
	"incredible":  {"Incredible %[1]s! 🔥", "That's incredible %[1]s! 🌟"},
	"brilliant":   {"Brilliant %[1]s! 💡", "That's brilliant %[1]s! 🌟"},
	"wonderful":   {"Wonderful %[1]s! 🌈", "That's wonderful %[1]s! ✨"},
	"super":       {"Super %[1]s! 🚀", "That's super %[1]s! ✨"},
	"sweet":       {"Sweet %[1]s! 🍬", "That's sweet %[1]s! 😊"},
	"epic":        {"Epic %[1]s! 🎮", "That's epic %[1]s! 🔥"},
	"legendary":   {"Legendary %[1]s! 💎", "That's legendary %[1]s! 🌟"},
	"marvelous":   {"Marvelous %[1]s! ✨", "That's marvelous %[1]s! 🌟"},
	"magnificent": {"Magnificent %[1]s! 👑", "That's magnificent %[1]s! 🌟"},

	// Praise words
	"great":       {"Great %[1]s! 👍", "That's great %[1]s! 🎊"},
	"good":        {"That's good %[1]s! 👍", "Good %[1]s! 😊"},
	"nice":        {"Nice %[1]s! 😊", "That's nice %[1]s! ✨"},
	"cool":        {"Cool %[1]s! 😎", "That's cool %[1]s! ✨"},
	"excellent":   {"Excellent %[1]s! 🎯", "Great job %[1]s! 🌟"},
	"perfect":     {"Perfect %[1]s! ✅", "That's perfect %[1]s! ✨"},
	"outstanding": {"Outstanding %[1]s! 🏆", "That's outstanding %[1]s! 🌟"},
	"remarkable":  {"Remarkable %[1]s! ✨", "That's remarkable %[1]s! 🌟"},
	"splendid":    {"Splendid %[1]s! 🌟", "That's splendid %[1]s! ✨"},
	"terrific":    {"Terrific %[1]s! 🎉", "That's terrific %[1]s! 🌟"},
	"fabulous":    {"Fabulous %[1]s! ✨", "That's fabulous %[1]s! 🌈"},
	"phenomenal":  {"Phenomenal %[1]s! 🔥", "That's phenomenal %[1]s! 🌟"},
	"spectacular": {"Spectacular %[1]s! 🎆", "That's spectacular %[1]s! ✨"},

	// Achievement words
	"congrats":        {"Congratulations %[1]s! 🎉🎊", "Well done %[1]s! 👏", "Congrats %[1]s! 🏆"},
	"congratulations": {"Congratulations %[1]s! 🎉🎊", "Amazing achievement %[1]s! 🏆"},
	"bravo":           {"Bravo %[1]s! 👏", "Well done %[1]s! 🎉"},
	"kudos":           {"Kudos %[1]s! 👏", "Great job %[1]s! 🌟"},

	// Appreciation words
	"thanks":     {"You're welcome %[1]s! 😊", "Happy to help %[1]s! 🙌", "Any time %[1]s! 💙"},
	"thank":      {"You're welcome %[1]s! 😊", "Happy to help %[1]s! 🙌"},
	"appreciate": {"You're welcome %[1]s! 😊", "Happy to help %[1]s! 🙌"},

	// Agreement words
	"yeah": {"Yeah %[1]s! 👍", "Right on %[1]s! ✨"},
	"yes":  {"Great %[1]s! 👍", "Awesome %[1]s! 😊"},
	"yay":  {"Yay %[1]s! 🎉", "That's great %[1]s! 🌟"},
	"yep":  {"Yep %[1]s! 👍", "Right on %[1]s! ✨"},
	"yup":  {"Yup %[1]s! 👍", "Exactly %[1]s! 🎯"},
	"okay": {"Okay %[1]s! 👍", "Sounds good %[1]s! 😊"},
	"ok":   {"Okay %[1]s! 👍", "Sounds good %[1]s! 😊"},

	// Fun words
	"fun":      {"Glad you're having fun %[1]s! 🎮", "Fun is the best %[1]s! 🎈"},
	"enjoy":    {"Glad you're enjoying %[1]s! 🎉", "Enjoy %[1]s! 🎈"},
	"enjoying": {"Glad you're enjoying %[1]s! 🎉", "That's great %[1]s! 🎈"},
	"loved":    {"Glad you loved it %[1]s! ❤️", "That's wonderful %[1]s! 💙"},
	"love":     {"Love it too %[1]s! ❤️", "That's awesome %[1]s! 💙"},
	"loving":   {"Glad you're loving it %[1]s! ❤️", "That's great %[1]s! 💙"},

	// Surprise words
	"surprise":   {"Surprise! %[1]s! 🎁", "Wow %[1]s! That's surprising! 😲"},
	"surprised":  {"Surprised %[1]s? 😲", "That's surprising %[1]s! ✨"},
	"surprising": {"That's surprising %[1]s! 😲", "Amazing %[1]s! ✨"},
	"shocked":    {"Shocked %[1]s? 😲", "That's shocking %[1]s! ⚡"},
	"shocking":   {"That's shocking %[1]s! ⚡", "Wow %[1]s! 😲"},
	"shoked":     {"Shocked %[1]s? 😲", "That's shocking %[1]s! ⚡"},
	"shokd":      {"Shocked %[1]s? 😲", "That's shocking %[1]s! ⚡"},

	// Emotion words
	"happy":     {"Glad you're happy %[1]s! 😊", "Happiness is great %[1]s! 🌈"},
	"happiness": {"Happiness is wonderful %[1]s! 😊", "That's great %[1]s! 🌈"},
	"joy":       {"Joy is amazing %[1]s! 😊", "Glad you feel joy %[1]s! 🌈"},
	"joyful":    {"Joyful %[1]s! 😊", "That's wonderful %[1]s! 🌈"},
	"excited":   {"Excited %[1]s? 🎉", "That's exciting %[1]s! ✨"},
	"exciting":  {"That's exciting %[1]s! 🎉", "Great %[1]s! ✨"},
	"thrilled":  {"Thrilled %[1]s? 🎉", "That's thrilling %[1]s! ✨"},
	"thrilling": {"That's thrilling %[1]s! 🎉", "Great %[1]s! ✨"},
	"proud":     {"Proud of you %[1]s! 👏", "That's something to be proud of %[1]s! 🌟"},
	"pleased":   {"Pleased %[1]s? 😊", "That's great %[1]s! ✨"},
	"delighted": {"Delighted %[1]s? 😊", "That's wonderful %[1]s! 🌟"},
	"glad":      {"Glad to hear %[1]s! 😊", "That's great %[1]s! ✨"},
	"ecstatic":  {"Ecstatic %[1]s? 🎉", "That's amazing %[1]s! ✨"},
	"overjoyed": {"Overjoyed %[1]s? 🎉", "That's wonderful %[1]s! 🌟"},

	// Lucky words
	"lucky":   {"Lucky %[1]s! 🍀", "That's lucky %[1]s! ✨"},
	"luck":    {"Good luck %[1]s! 🍀", "That's lucky %[1]s! ✨"},
	"fortune": {"Fortune %[1]s! 🍀", "That's fortunate %[1]s! ✨"},
}

// NegativeWords is the default denylist. A message containing any of them
// gets no positive keyword reply.
var NegativeWords = []string{
	"sad", "angry", "bad", "terrible", "awful", "horrible", "disappointed",
	"upset", "mad", "hate", "hated", "depressed", "lonely", "tired", "exhausted",
	"bored", "annoyed", "frustrated", "worried", "scared", "afraid", "fear",
}

// Keywords answers cheerful messages.
type Keywords struct {
	deps *Deps
}

func (m *Keywords) Name() string { return ModuleKeywords }

func (m *Keywords) Registrations() []registry.Registration {
	words := make([]string, 0, len(keywordReplies))
	for w := range keywordReplies {
		words = append(words, w)
	}
	sort.Strings(words)
	return []registry.Registration{
		{
			Name:     "keywords.reply",
			Trigger:  registry.Keywords(words...),
			Class:    registry.Responder,
			Positive: true,
			Priority: 10,
			Handler:  registry.HandlerFunc(m.reply),
		},
	}
}

func (m *Keywords) reply(ctx context.Context, inv *registry.Invocation) error {
	templates, ok := keywordReplies[inv.Keyword]
	if !ok {
		return nil
	}
	tmpl := templates[m.deps.pick(len(templates))]
	inv.ReplyText(ctx, fmt.Sprintf(tmpl, inv.Event.Author.Mention()))
	return nil
}
