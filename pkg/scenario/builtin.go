package scenario

var builtin = []Scenario{
	{
		ID:             "schedule_new",
		Name:           "Schedule new appointment",
		Goal:           "Schedule a new appointment with the doctor.",
		Instructions:   "Ask to book an appointment. Prefer morning if they offer. Keep it short.",
		FirstUtterance: "Hi, I'd like to schedule an appointment please.",
	},
	{
		ID:             "reschedule",
		Name:           "Reschedule appointment",
		Goal:           "Reschedule an existing appointment to a different day or time.",
		Instructions:   "Say you need to reschedule. Give a reason like work conflict. Ask what times are available.",
		FirstUtterance: "I need to reschedule my appointment. Something came up at work.",
	},
	{
		ID:             "cancel",
		Name:           "Cancel appointment",
		Goal:           "Cancel an existing appointment.",
		Instructions:   "Politely cancel. You can say you'll call back to rebook later.",
		FirstUtterance: "Hi, I need to cancel my upcoming appointment.",
	},
	{
		ID:             "refill",
		Name:           "Medication refill",
		Goal:           "Request a refill for a current medication.",
		Instructions:   "Ask for a refill. If they ask, say it's for something like blood pressure or allergy medicine. Keep answers short.",
		FirstUtterance: "I need a refill on my prescription please.",
	},
	{
		ID:             "office_hours",
		Name:           "Office hours",
		Goal:           "Find out when the office is open.",
		Instructions:   "Ask what the office hours are, maybe for weekdays and weekends.",
		FirstUtterance: "What are your office hours?",
	},
	{
		ID:             "location",
		Name:           "Location / address",
		Goal:           "Get the office address or directions.",
		Instructions:   "Ask where the office is or how to get there.",
		FirstUtterance: "Where is the office located? I'm not sure I have the right address.",
	},
	{
		ID:             "insurance",
		Name:           "Insurance",
		Goal:           "Ask whether the practice takes your insurance.",
		Instructions:   "Ask if they accept a specific insurance (e.g. Blue Cross) or what insurance they take.",
		FirstUtterance: "Do you take Blue Cross Blue Shield?",
	},
	{
		ID:             "multiple_requests",
		Name:           "Multiple requests in one call",
		Goal:           "Both get office hours and schedule an appointment.",
		Instructions:   "First ask office hours, then say you'd like to book an appointment.",
		FirstUtterance: "What are your hours? And I'd like to book an appointment too.",
	},
	{
		ID:             "vague_request",
		Name:           "Vague request",
		Goal:           "Start with something unclear and let the agent clarify.",
		Instructions:   "Say something vague like 'I need help with something' or 'I was calling about...' and answer when they ask for details.",
		FirstUtterance: "Hi, I was calling about something I needed to do.",
	},
	{
		ID:             "wrong_number",
		Name:           "Wrong number / confusion",
		Goal:           "Act briefly confused (e.g. thought it was another office) then continue.",
		Instructions:   "Say 'Oh wait, is this Dr. Smith's office?' then when they respond, say you need an appointment anyway.",
		FirstUtterance: "Is this the dentist office? Oh okay, I actually need to make an appointment.",
	},
}
