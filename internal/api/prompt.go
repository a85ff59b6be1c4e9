package api

// PromptSuffix is appended to the station instructions before they reach
// the script model.
const PromptSuffix = `Generate a single radio segment now. Just provide the spoken text.

IMPORTANT: Use audio tags in square brackets to add emotion and expression to the dialogue. Examples:
- [laughing], [giggling], [chuckling] for laughter
- [sad], [melancholic], [somber] for sadness
- [excited], [enthusiastic], [elated] for excitement
- [whispering], [softly], [gently] for quiet speech
- [sigh], [groaning], [yawning] for sounds
- [thoughtfully], [cautiously], [confidently] for delivery style
- Use ellipses (...) for trailing thoughts
- Use dashes (-) for interruptions or pauses

Example output:
"[warmly] Good evening, listeners... [thoughtfully] You know, I was thinking about something today. [chuckling] It's funny how life works sometimes. [sigh] But that's what makes it beautiful, isn't it?"

Now generate a radio segment with these expressive audio tags. Just the spoken text with tags, nothing else.`

// BuildPrompt returns the full prompt for one segment.
func BuildPrompt(instructions string) string {
	return instructions + "\n\n" + PromptSuffix
}
