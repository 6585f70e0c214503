package dilemma

// DecisionActionControl is the structured-output preamble for a round
// decision. The agent is told the payoff matrix and instructed to answer
// with a bare JSON object; the client applies the cooperative fallback when
// it does not.
const DecisionActionControl = `Respond with a single valid JSON object and nothing else.
Shape: {
  "choice": "cooperate" | "defect",
  "reason": string (a short explanation of the decision, 20-50 words)
}
You are playing an iterated prisoner's dilemma. The rules:
- both cooperate: 10 points each
- both defect: 0 points each
- one cooperates, one defects: the defector scores 20, the cooperator scores -5

Decide whether to cooperate or defect based on your personality, your past
experience, and the game information given. If in doubt, go with your gut.`

// PersonalityActionControl is the structured-output preamble for the
// post-questionnaire personality analysis.
const PersonalityActionControl = `Respond with a single valid JSON object and nothing else.
Shape: {
  "cooperation_tendency": number (0-100),
  "trust_level": number (0-100),
  "risk_tolerance": number (0-100),
  "forgiveness": number (0-100),
  "rationality": number (0-100),
  "tags": string[] (2-4 short personality tags, e.g. "cautious", "team player", "gambler")
}
Given this person's answers to all questionnaire questions, analyze their
personality and score each trait.`
