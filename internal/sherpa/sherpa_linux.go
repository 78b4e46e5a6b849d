//go:build linux

// Package sherpa re-exports the parts of the sherpa-onnx Go bindings used by
// the recognizers and the synthesizer, so callers compile unchanged on Linux
// and macOS.
//
// The prebuilt Linux package runs on the CPU. CUDA is used when a CUDA build
// of sherpa-onnx replaces it at link time.
package sherpa

import (
	"os"
	"strings"

	impl "github.com/k2-fsa/sherpa-onnx-go-linux"
)

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

// gpuMarkers are paths present on hosts with an NVIDIA driver, either a
// discrete card or a Jetson module.
var gpuMarkers = []string{
	"/usr/bin/nvidia-smi",
	"/usr/local/bin/nvidia-smi",
	"/dev/nvidia0",
	"/dev/nvhost-gpu",
	"/dev/nvmap",
	"/etc/nv_tegra_release",
}

// DefaultProvider picks cuda when an NVIDIA GPU is visible, cpu otherwise.
func DefaultProvider() string {
	if hasNvidiaGPU() {
		return "cuda"
	}
	return "cpu"
}

// AvailableProviders lists the provider names accepted on Linux.
func AvailableProviders() []string {
	return []string{"cpu", "cuda"}
}

func hasNvidiaGPU() bool {
	for _, path := range gpuMarkers {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	compatible, err := os.ReadFile("/proc/device-tree/compatible")
	return err == nil && strings.Contains(string(compatible), "nvidia,")
}
