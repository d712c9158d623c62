package chatbot

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Canned small-talk. The classifier below routes anything that is not a
// command into one of these pools.

var greetingPool = []string{
	"Hey %s! 👋 Great to see you! How can I help you schedule something today?",
	"Hi %s! 😊 Welcome! Ready to schedule some emails?",
	"Hello %s! 🎉 What can I do for you?",
	"Yo %s! What's up? Need to schedule something?",
	"Hey %s! Nice to see you around. How's it going?",
}

var howAreYouPool = []string{
	"I'm doing great, thanks for asking! 😊 I'm here and ready to help you schedule emails. How are *you* doing?",
	"Fantastic! I'm running smoothly and ready to help. How's your day treating you?",
	"I'm awesome, thanks! 🚀 Ready to schedule some emails whenever you are.",
	"Doing well! My circuits are buzzing with energy. What can I help you with?",
	"Can't complain! I'm here, energized, and ready to assist. How are YOU?",
}

var dayPool = []string{
	"My %s is going great, thanks! 🌅 Just here helping people schedule important emails. How's yours?",
	"Pretty good %s! Just waiting to help you schedule something awesome. What's on your mind?",
	"Can't complain! The %s is young and full of possibilities. How about you?",
	"Living my best %s! 📧 Ready to help whenever you need. What's up?",
}

var quotePool = []string{
	"✨ \"The future depends on what you do today.\" - Mahatma Gandhi",
	"💪 \"You are capable of amazing things.\" - Unknown",
	"🎯 \"Success is not final, failure is not fatal: it is the courage to continue that counts.\" - Winston Churchill",
	"🚀 \"The only way to do great work is to love what you do.\" - Steve Jobs",
	"⭐ \"Don't watch the clock; do what it does. Keep going.\" - Sam Levenson",
	"🌟 \"Believe you can and you're halfway there.\" - Theodore Roosevelt",
	"💡 \"The best time to plant a tree was 20 years ago. The second best time is now.\" - Chinese Proverb",
	"🔥 \"Your limitation—it's only your imagination.\" - Unknown",
	"🎨 \"Creativity takes courage.\" - Henri Matisse",
	"🏆 \"Excellence is not a destination; it is a continuous journey that never ends.\" - Brian Tracy",
}

var thanksPool = []string{
	"You're welcome! 😊 Happy to help anytime. Need anything else?",
	"My pleasure! 🙌 That's what I'm here for. Let me know if you need more help!",
	"Anytime! 💫 Thanks for using me. Anything else I can do?",
	"Of course! 😄 That's what assistants are for. What else can I help with?",
	"Happy to help! 🎉 Feel free to come back whenever you need me!",
}

const capabilitiesReply = "🤖 **Here's what I can do:**\n\n" +
	"📧 **Schedule Emails** - Set reminders and messages to be sent later\n" +
	"🔄 **Recurring Emails** - Daily, weekly, monthly, yearly, birthdays, anniversaries, etc.\n" +
	"⏰ **Custom Headers** - Personalize your email with custom headers\n" +
	"📋 **Manage Emails** - List, track, and cancel scheduled emails\n" +
	"💬 **Chat** - Have a friendly conversation with me\n\n" +
	"**Quick Start:**\n" +
	"/schedule \"Your message\" to email@domain.com at 2pm\n" +
	"/list - See all scheduled emails\n" +
	"/help - Full command details\n\n" +
	"What would you like to do? 😊"

const helpReply = "📚 **Scheduled Email Bot Help**\n\n" +
	"Commands:\n" +
	"/schedule \"message\" to email@domain.com at 2pm with header \"Header\"\n" +
	"/list - Show all scheduled emails\n" +
	"/cancel EMAIL_ID - Cancel a scheduled email\n\n" +
	"Recurrence options (add to /schedule):\n" +
	"- daily, weekly, monthly, yearly\n" +
	"- birthday, anniversary, employment\n\n" +
	"Example:\n" +
	"/schedule \"Don't forget the meeting\" to me@email.com at 9am daily with header \"Reminder\""

const fallbackReply = "👋 Hey there! I'm your Email Scheduling Assistant.\n\n" +
	"You can chat with me or schedule emails:\n" +
	"• /schedule \"message\" to email@domain.com at 2pm\n" +
	"• /list - See your scheduled emails\n" +
	"• /help - Full command list\n\n" +
	"Or just say hi! I'm here to help. 😊"

type smallTalkKind int

const (
	talkNone smallTalkKind = iota
	talkGreeting
	talkHowAreYou
	talkDay
	talkCapabilities
	talkQuote
	talkThanks
)

func classifySmallTalk(text string) smallTalkKind {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	// Whole-word match: "this" must not read as "hi".
	case hasWord(t, "hi", "hello", "hey", "greetings", "howdy"):
		return talkGreeting
	case containsAny(t, "how are you", "how are u", "how do you do", "how you doing"):
		return talkHowAreYou
	case containsAny(t, "how is your day", "how's your day", "how is your week"):
		return talkDay
	case containsAny(t, "what can you do", "what do you do", "capabilities", "features"):
		return talkCapabilities
	case containsAny(t, "quote", "inspire", "motivation", "motivate me"):
		return talkQuote
	case containsAny(t, "thank you", "thanks", "appreciate", "cheers"):
		return talkThanks
	}
	return talkNone
}

func hasWord(t string, words ...string) bool {
	fields := strings.FieldsFunc(t, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '\'')
	})
	for _, f := range fields {
		for _, w := range words {
			if f == w {
				return true
			}
		}
	}
	return false
}

func containsAny(t string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

func smallTalkReply(kind smallTalkKind, name string, now time.Time) string {
	switch kind {
	case talkGreeting:
		return fmt.Sprintf(pick(greetingPool), name)
	case talkHowAreYou:
		return pick(howAreYouPool)
	case talkDay:
		return fmt.Sprintf(pick(dayPool), dayPart(now))
	case talkCapabilities:
		return capabilitiesReply
	case talkQuote:
		return pick(quotePool)
	case talkThanks:
		return pick(thanksPool)
	}
	return fallbackReply
}

func pick(pool []string) string { return pool[rand.Intn(len(pool))] }

func dayPart(now time.Time) string {
	switch h := now.Hour(); {
	case h < 12:
		return "morning"
	case h < 17:
		return "afternoon"
	default:
		return "evening"
	}
}
