package analysis

import "fmt"

// BuildAnalysisPrompt wraps the patient's symptom narrative into the prompt
// sent identically to all three backends.
func BuildAnalysisPrompt(symptomes string) string {
	return fmt.Sprintf(`Symptômes du patient : %s
Veuillez préciser :
1. Analyses nécessaires
2. Diagnostic(s)
3. Traitement(s) avec posologie
4. Éducation thérapeutique
5. Références scientifiques fiables
6. Répondre ensuite comme assistant médical rigoureux et bienveillant.`, symptomes)
}

// BuildSynthesisPrompt embeds the three labeled answers (or their error
// placeholders) into the consolidating instruction for the synthesis backend.
func BuildSynthesisPrompt(results []BackendResult) string {
	byName := make(map[string]string, len(results))
	for _, r := range results {
		byName[r.Backend] = r.Content()
	}

	return fmt.Sprintf(`Trois experts ont donné leur avis :
- 🤖 GPT-4 : %s
- 🧠 Claude 3 : %s
- 🔬 Gemini Pro : %s
Formule une **synthèse claire, rigoureuse et prudente**, avec des **emojis** pour la lisibilité. 🩺
Si le patient pose des questions, réponds comme un assistant médical qualifié.`,
		byName[BackendGPT4], byName[BackendClaude], byName[BackendGemini])
}
