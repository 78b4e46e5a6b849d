//go:build darwin

package sherpa

import impl "github.com/k2-fsa/sherpa-onnx-go-macos"

type (
	VoiceActivityDetector = impl.VoiceActivityDetector
	VadModelConfig        = impl.VadModelConfig

	OfflineRecognizer       = impl.OfflineRecognizer
	OfflineRecognizerConfig = impl.OfflineRecognizerConfig
	OfflineStream           = impl.OfflineStream

	OnlineRecognizer       = impl.OnlineRecognizer
	OnlineRecognizerConfig = impl.OnlineRecognizerConfig
	OnlineStream           = impl.OnlineStream

	OfflineTts       = impl.OfflineTts
	OfflineTtsConfig = impl.OfflineTtsConfig
)

var (
	NewVoiceActivityDetector    = impl.NewVoiceActivityDetector
	DeleteVoiceActivityDetector = impl.DeleteVoiceActivityDetector

	NewOfflineRecognizer    = impl.NewOfflineRecognizer
	DeleteOfflineRecognizer = impl.DeleteOfflineRecognizer
	NewOfflineStream        = impl.NewOfflineStream
	DeleteOfflineStream     = impl.DeleteOfflineStream

	NewOnlineRecognizer    = impl.NewOnlineRecognizer
	DeleteOnlineRecognizer = impl.DeleteOnlineRecognizer
	NewOnlineStream        = impl.NewOnlineStream
	DeleteOnlineStream     = impl.DeleteOnlineStream

	NewOfflineTts    = impl.NewOfflineTts
	DeleteOfflineTts = impl.DeleteOfflineTts
)

// DefaultProvider is coreml, which runs on the Neural Engine.
func DefaultProvider() string {
	return "coreml"
}

// AvailableProviders lists the provider names accepted on macOS.
func AvailableProviders() []string {
	return []string{"cpu", "coreml"}
}
