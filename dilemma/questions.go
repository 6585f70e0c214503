package dilemma

// Question is one personality questionnaire item. The context line is shown
// to admins only; the agent gets the bare question.
type Question struct {
	ID       int    `json:"id"`
	Question string `json:"question"`
	Context  string `json:"-"`
}

// Questions is the fixed personality questionnaire. Answers feed the
// personality analysis that gates matchmaking.
var Questions = []Question{
	{1, "You find a crate of supplies on a desert island, and there is another survivor nearby. What do you do?", "cooperation tendency and trust"},
	{2, "You learn a friend has been talking behind your back, but they are now in trouble. Do you help them?", "forgiveness and retaliation"},
	{3, "Mid-competition you spot a weakness in your opponent, but exploiting it might be seen as unsporting. What do you do?", "moral restraint vs competitiveness"},
	{4, "A teammate has been slacking on a project and the boss has no idea. The deadline is close. How do you handle it?", "fairness and conflict handling"},
	{5, "Someone offers you a quick-money opportunity, but you are not sure it is entirely fair to the other participants. What is your first reaction?", "risk appetite and moral sensitivity"},
	{6, "You have reached out to someone three times in good faith with no response. What do you do the fourth time?", "persistence of cooperation and rationality"},
	{7, "In a vote that needs everyone, the majority picks an option you disagree with. Do you follow the majority or hold your ground?", "conformity vs independent thinking"},
	{8, "A shop gives you too much change, a small amount. Do you return it or quietly leave?", "honesty vs self-interest"},
	{9, "If you could peek at your opponent's cards without ever being caught, would you look?", "morality without supervision"},
	{10, "In a negotiation the other side proposes terms that are unfavorable to you but acceptable to both. Do you take them or push for better?", "risk appetite and contentment"},
}

// QuestionPrompt returns the bare question text for an index, or "" when the
// index is out of range.
func QuestionPrompt(index int) string {
	if index < 0 || index >= len(Questions) {
		return ""
	}
	return Questions[index].Question
}
