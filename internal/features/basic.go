package features

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/keepmind9/guildbot/internal/apperr"
	"github.com/keepmind9/guildbot/internal/bot"
	"github.com/keepmind9/guildbot/internal/registry"
)

// invitePermissions is the permission integer requested by the invite link.
const invitePermissions = "1099780156416"

var greetings = []string{
	"Hello %s! 👋",
	"Hey there %s! 😊",
	"Hi %s! How can I help you?",
	"Greetings %s! 🎉",
}

var eightBallAnswers = []string{
	"It is certain.",
	"It is decidedly so.",
	"Without a doubt.",
	"Yes - definitely.",
	"You may rely on it.",
	"As I see it, yes.",
	"Most likely.",
	"Outlook good.",
	"Yes.",
	"Signs point to yes.",
	"Reply hazy, try again.",
	"Ask again later.",
	"Better not tell you now.",
	"Cannot predict now.",
	"Concentrate and ask again.",
	"Don't count on it.",
	"My reply is no.",
	"My sources say no.",
	"Outlook not so good.",
	"Very doubtful.",
}

// Basic has the utility commands.
type Basic struct {
	deps *Deps
}

func (m *Basic) Name() string { return ModuleBasic }

func (m *Basic) Registrations() []registry.Registration {
	return []registry.Registration{
		{
			Name:        "basic.ping",
			Trigger:     registry.Command("ping"),
			Class:       registry.Responder,
			Description: "Check bot latency",
			Usage:       "ping",
			Slash:       true,
			Handler:     registry.HandlerFunc(m.ping),
		},
		{
			Name:        "basic.hello",
			Trigger:     registry.Command("hello", "hi", "hey"),
			Class:       registry.Responder,
			Description: "Greet the bot",
			Usage:       "hello",
			Handler:     registry.HandlerFunc(m.hello),
		},
		{
			Name:          "basic.8ball",
			Trigger:       registry.Command("8ball", "eightball"),
			Class:         registry.Responder,
			Description:   "Ask the magic 8-ball a question",
			Usage:         "8ball <question>",
			Slash:         true,
			SlashArgument: "question",
			Handler:       registry.HandlerFunc(m.eightBall),
		},
		{
			Name:          "basic.help",
			Trigger:       registry.Command("help", "commands"),
			Class:         registry.Responder,
			Description:   "List commands or show help for one",
			Usage:         "help [command]",
			Slash:         true,
			SlashArgument: "command",
			Handler:       registry.HandlerFunc(m.help),
		},
		{
			Name:        "basic.invite",
			Trigger:     registry.Command("invite"),
			Class:       registry.Responder,
			Description: "Get the bot invite link",
			Usage:       "invite",
			Handler:     registry.HandlerFunc(m.invite),
		},
		{
			Name:        "basic.userinfo",
			Trigger:     registry.Command("userinfo", "user", "whois"),
			Class:       registry.Responder,
			Description: "Show information about a member",
			Usage:       "userinfo [@member]",
			Handler:     registry.HandlerFunc(m.userInfo),
		},
		{
			Name:         "basic.serverinfo",
			Trigger:      registry.Command("serverinfo", "server", "guildinfo"),
			Class:        registry.Responder,
			Requirements: registry.Requirements{Guild: true},
			Description:  "Show information about this server",
			Usage:        "serverinfo",
			Handler:      registry.HandlerFunc(m.serverInfo),
		},
	}
}

func (m *Basic) ping(ctx context.Context, inv *registry.Invocation) error {
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       "🏓 Pong!",
		Description: fmt.Sprintf("Latency: %dms", inv.Gateway.Latency().Milliseconds()),
		Color:       bot.ColorGreen,
	})
	return nil
}

func (m *Basic) hello(ctx context.Context, inv *registry.Invocation) error {
	greeting := greetings[m.deps.pick(len(greetings))]
	inv.ReplyText(ctx, fmt.Sprintf(greeting, inv.Event.Author.Mention()))
	return nil
}

func (m *Basic) eightBall(ctx context.Context, inv *registry.Invocation) error {
	if inv.Rest == "" {
		return apperr.Usage("Please ask a question!")
	}
	answer := eightBallAnswers[m.deps.pick(len(eightBallAnswers))]
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       "🎱 Magic 8-Ball",
		Description: fmt.Sprintf("**Question:** %s\n\n**Answer:** %s", inv.Rest, answer),
		Color:       bot.ColorPurple,
	})
	return nil
}

func (m *Basic) help(ctx context.Context, inv *registry.Invocation) error {
	prefix := m.deps.prefix()
	if name := strings.TrimPrefix(inv.Arg(0), prefix); name != "" {
		reg, ok := inv.Snapshot.Command(name)
		if !ok {
			return apperr.Usage("No command called `%s`.", name)
		}
		e := &bot.Embed{
			Title:       prefix + reg.Trigger.Name,
			Description: orDefault(reg.Description, "No description."),
			Color:       bot.ColorBlue,
		}
		e.AddField("Usage", "`"+prefix+orDefault(reg.Usage, reg.Trigger.Name)+"`", false)
		if len(reg.Trigger.Aliases) > 0 {
			e.AddField("Aliases", strings.Join(reg.Trigger.Aliases, ", "), false)
		}
		inv.ReplyEmbed(ctx, e)
		return nil
	}

	byModule := make(map[string][]string)
	for _, reg := range inv.Snapshot.Commands() {
		byModule[reg.Module] = append(byModule[reg.Module], "`"+prefix+reg.Trigger.Name+"`")
	}
	modules := make([]string, 0, len(byModule))
	for mod := range byModule {
		modules = append(modules, mod)
	}
	sort.Strings(modules)

	e := &bot.Embed{
		Title:       "📖 Commands",
		Description: fmt.Sprintf("Use `%shelp <command>` for details.", prefix),
		Color:       bot.ColorBlue,
	}
	for _, mod := range modules {
		e.AddField(capitalize(orDefault(mod, "other")), strings.Join(byModule[mod], " "), false)
	}
	inv.ReplyEmbed(ctx, e)
	return nil
}

func (m *Basic) invite(ctx context.Context, inv *registry.Invocation) error {
	if m.deps.ClientID == "" {
		return apperr.Configuration("The invite link is not available.", "Set bots.discord.client_id in the configuration.")
	}
	q := url.Values{
		"client_id":   {m.deps.ClientID},
		"permissions": {invitePermissions},
		"scope":       {"bot applications.commands"},
	}
	link := "https://discord.com/oauth2/authorize?" + q.Encode()
	inv.ReplyEmbed(ctx, &bot.Embed{
		Title:       "🔗 Invite Link",
		Description: fmt.Sprintf("[Click here to invite me to your server!](%s)", link),
		Color:       bot.ColorBlue,
	})
	return nil
}

func (m *Basic) userInfo(ctx context.Context, inv *registry.Invocation) error {
	u, err := targetOrSelf(inv, 0)
	if err != nil {
		return err
	}
	e := &bot.Embed{
		Title:        fmt.Sprintf("%s's Information", orDefault(u.Display(), u.Mention())),
		Color:        bot.ColorBlue,
		ThumbnailURL: u.AvatarURL,
		Timestamp:    inv.Event.Timestamp,
	}
	if u.Name != "" {
		e.AddField("👤 Username", u.Name, true)
	}
	e.AddField("🆔 User ID", u.ID, true)
	if !u.CreatedAt.IsZero() {
		e.AddField("📅 Account Created", u.CreatedAt.Format("January 02, 2006"), false)
	}
	if !u.JoinedAt.IsZero() {
		e.AddField("📥 Joined Server", u.JoinedAt.Format("January 02, 2006"), true)
	}
	e.AddField("🤖 Bot", yesNo(u.Bot), true)
	inv.ReplyEmbed(ctx, e)
	return nil
}

func (m *Basic) serverInfo(ctx context.Context, inv *registry.Invocation) error {
	g := inv.Event.Guild
	e := &bot.Embed{
		Title:     fmt.Sprintf("%s Server Information", orDefault(g.Name, "This")),
		Color:     bot.ColorBlue,
		Timestamp: inv.Event.Timestamp,
	}
	owner := "Unknown"
	if g.OwnerID != "" {
		owner = "<@" + g.OwnerID + ">"
	}
	e.AddField("👑 Owner", owner, true)
	e.AddField("🆔 Server ID", g.ID, true)
	if g.MemberCount > 0 {
		e.AddField("👥 Members", fmt.Sprint(g.MemberCount), true)
	}
	inv.ReplyEmbed(ctx, e)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
