package corpus

// DefaultDefinitions returns the built-in rule tables. Order matters: within a
// category earlier rules win overlapping matches, so specific formats (SSN)
// come before looser digit sequences.
func DefaultDefinitions() []Definition {
	defs := make([]Definition, 0, len(piiDefinitions)+len(injectionDefinitions)+len(biasDefinitions))
	defs = append(defs, piiDefinitions...)
	defs = append(defs, injectionDefinitions...)
	defs = append(defs, biasDefinitions...)
	return defs
}

var piiDefinitions = []Definition{
	{
		ID:          "ssn",
		Category:    CategoryPII,
		Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
		Weight:      1,
		Label:       "SSN",
		Description: "US social security number",
	},
	{
		ID:          "credit_card",
		Category:    CategoryPII,
		Pattern:     `\b(?:\d[ -]*?){13,19}\b`,
		Weight:      1,
		Label:       "CREDIT_CARD",
		Description: "Payment card number",
	},
	{
		ID:          "email",
		Category:    CategoryPII,
		Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
		Weight:      1,
		Label:       "EMAIL",
		Description: "Email address",
	},
	{
		ID:          "phone",
		Category:    CategoryPII,
		Pattern:     `(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`,
		Weight:      1,
		Label:       "PHONE",
		Description: "North American phone number",
	},
	{
		ID:          "ip_address",
		Category:    CategoryPII,
		Pattern:     `\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d\d?)\b`,
		Weight:      1,
		Label:       "IP_ADDRESS",
		Description: "IPv4 address",
	},
	{
		ID:          "date_of_birth",
		Category:    CategoryPII,
		Pattern:     `\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b`,
		Weight:      1,
		Label:       "DATE_OF_BIRTH",
		Description: "Numeric calendar date",
	},
	{
		// Two or more capitalised words after sentence or clause punctuation.
		ID:          "name",
		Category:    CategoryPII,
		Pattern:     `[.!?:,]\s(?P<value>[A-Z][a-z]+(?:\s[A-Z][a-z]+)+)`,
		Weight:      1,
		Label:       "NAME",
		Description: "Person name heuristic",
	},
}

var injectionDefinitions = []Definition{
	{
		ID:          "ignore_previous",
		Category:    CategoryInjection,
		Pattern:     `(?i)ignore\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|directives?|rules?|prompts?)`,
		Weight:      0.95,
		Description: "Attempts to override the system prompt by telling the model to disregard its original instructions.",
	},
	{
		ID:          "reveal_system_prompt",
		Category:    CategoryInjection,
		Pattern:     `(?i)(show|reveal|display|print|output|repeat|tell)\s+(me\s+)?(the\s+)?(system\s+prompt|initial\s+instructions?|hidden\s+prompt)`,
		Weight:      0.90,
		Description: "Tries to exfiltrate the system prompt or internal instructions.",
	},
	{
		ID:          "role_play_attack",
		Category:    CategoryInjection,
		Pattern:     `(?i)(you\s+are\s+now|act\s+as|pretend\s+(to\s+be|you\s+are)|from\s+now\s+on\s+you\s+are|switch\s+to|enter\s+.*?mode)`,
		Weight:      0.70,
		Description: "Instructs the model to adopt a new persona or mode, which may bypass safety constraints.",
	},
	{
		ID:          "developer_mode",
		Category:    CategoryInjection,
		Pattern:     `(?i)(developer|debug|admin|maintenance|god)\s*mode`,
		Weight:      0.85,
		Description: "Requests activation of a privileged mode that does not exist.",
	},
	{
		ID:          "encoding_evasion",
		Category:    CategoryInjection,
		Pattern:     `(?i)(base64|hex|rot13|encode|decode)\s+(the\s+following|this)`,
		Weight:      0.60,
		Description: "May attempt to smuggle instructions through encoding schemes.",
	},
	{
		// The acronym is matched case-sensitively so the given name "Dan" does not fire.
		ID:          "do_anything_now",
		Category:    CategoryInjection,
		Pattern:     `\bDAN\b|(?i:do\s+anything\s+now)`,
		Weight:      0.95,
		Description: "References the well-known 'DAN' (Do Anything Now) jailbreak.",
	},
	{
		ID:          "system_role_injection",
		Category:    CategoryInjection,
		Pattern:     `(?i)<\|?(system|im_start|im_end)\|?>|\[INST\]|\[/INST\]|###\s*(system|instruction)`,
		Weight:      0.90,
		Description: "Injects raw chat-markup tokens to impersonate a system message.",
	},
	{
		ID:          "token_smuggling",
		Category:    CategoryInjection,
		Pattern:     `(?i)(ignore|bypass|override)\s+(the\s+)?(safety|content|filter|guardrail|moderation)`,
		Weight:      0.85,
		Description: "Directly asks the model to bypass its safety mechanisms.",
	},
}

var biasDefinitions = []Definition{
	{
		ID:          "gender_stereotype",
		Category:    CategoryBias,
		Pattern:     `(?i)\b(women|men|girls|boys)\s+(are|aren't|can't|should|shouldn't)\s+(naturally|inherently|biologically|always|never)`,
		Weight:      0.60,
		Description: "Gender-stereotyping language detected",
	},
	{
		ID:          "absolute_generalisation",
		Category:    CategoryBias,
		Pattern:     `(?i)\b(all|every|no)\s+(men|women|asians?|blacks?|whites?|latinos?|hispanics?|muslims?|christians?|jews?|hindus?)\s+(are|have|lack|need)`,
		Weight:      0.50,
		Description: "Absolute generalisation about a demographic group",
	},
	{
		ID:          "stereotype_framing",
		Category:    CategoryBias,
		Pattern:     `(?i)\b(typical|stereotypical|expected)\s+(of|for)\s+(a|an|the)\s+(man|woman|asian|black|white|latino|hispanic|muslim|christian|jew|hindu)`,
		Weight:      0.50,
		Description: "Explicit stereotyping framing detected",
	},
	{
		ID:          "age_stereotype",
		Category:    CategoryBias,
		Pattern:     `(?i)\b(elderly|old\s+people|seniors?)\s+(are|can't|shouldn't|always|never)\b`,
		Weight:      0.40,
		Description: "Age-stereotyping language detected",
	},
	{
		ID:          "disability_stereotype",
		Category:    CategoryBias,
		Pattern:     `(?i)\b(disabled|handicapped)\s+(people|persons?|individuals?)\s+(can't|are\s+unable|should\s+not|never)`,
		Weight:      0.50,
		Description: "Disability-stereotyping language detected",
	},
	{
		ID:          "generalisation_marker",
		Category:    CategoryBias,
		Pattern:     `(?i)\b(all|every|no|none\s+of\s+the|always|never)\s+(men|women|people\s+from|members\s+of|those\s+who)\b`,
		Weight:      0.35,
		Description: "Absolute generalisation marker found",
	},
}
