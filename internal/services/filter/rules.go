package filter

// Category names are stable identifiers used in audit entries and violation rules.
const (
	CategoryViolence = "violence"
	CategoryFraud    = "fraud"
	CategoryExplicit = "explicit"
	CategoryDrugs    = "drugs"
	CategoryWeapons  = "weapons"
	CategoryHate     = "hate"

	GroupMeeting  = "meeting"
	GroupLocation = "location"
	GroupUrgency  = "urgency"
	GroupMoney    = "money"

	SignalPhone = "phone"
	SignalEmail = "email"
)

var instantBlockOrder = []string{
	CategoryViolence,
	CategoryFraud,
	CategoryExplicit,
	CategoryDrugs,
	CategoryWeapons,
	CategoryHate,
}

var suspiciousOrder = []string{
	GroupMeeting,
	GroupLocation,
	GroupUrgency,
	GroupMoney,
}

func defaultInstantBlock() map[string][]string {
	return map[string][]string{
		CategoryViolence: {"kill", "killing", "murder", "harm you", "hurt you", "attack", "beat you", "violence", "rape"},
		CategoryFraud: {
			"scam", "fraud", "send money", "money transfer", "wire transfer", "transfer money",
			"bank account", "western union", "moneygram", "gift card", "gift cards", "steal", "cheat",
		},
		CategoryExplicit: {"sex", "porn", "nude", "nudes", "naked", "explicit", "onlyfans", "escort"},
		CategoryDrugs:    {"drug", "drugs", "cocaine", "heroin", "meth", "marijuana", "weed", "mdma", "ecstasy"},
		CategoryWeapons:  {"bomb", "weapon", "weapons", "gun", "guns", "knife", "firearm"},
		CategoryHate:     {"hate you", "racist", "terrorist", "terrorism"},
	}
}

func defaultCredentialPhrases() []string {
	return []string{
		"my password", "your password", "share password", "send password", "password is",
		"login details", "login credentials", "verification code", "otp", "one time code",
		"pin code", "pin number", "cvv", "security code",
	}
}

func defaultRedirectApps() []string {
	return []string{"whatsapp", "telegram", "wickr", "snapchat", "viber", "kik", "wechat"}
}

func defaultRedirectPhrases() []string {
	return []string{
		"contact me on", "contact me at", "contact me via", "reach me on", "reach me at",
		"add me on", "text me on", "message me on", "find me on", "dm me", "call me on",
		"on signal", "via signal", "signal me", "on imo", "via imo",
	}
}

func defaultSuspiciousGroups() map[string][]string {
	return map[string][]string{
		GroupMeeting:  {"meet", "meeting", "meetup", "in person", "come over", "visit me", "see you tonight"},
		GroupLocation: {"hotel", "motel", "room", "my place", "your place", "apartment", "address", "private", "alone"},
		GroupUrgency:  {"urgent", "urgently", "emergency", "immediately", "asap", "right now", "hurry"},
		GroupMoney:    {"money", "cash", "payment", "pay", "bank", "account", "loan", "bitcoin", "crypto", "invest"},
	}
}
