// Package engines contains the subprocess speech engines: Piper (offline)
// and gTTS (Google Translate, online). Both emit mono 16-bit PCM.
package engines
