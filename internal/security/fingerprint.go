package security

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"golang.org/x/sync/singleflight"
)

// unknownComponent is the sentinel used when a single hardware probe fails.
// The signature must still be computable with partial hardware info.
const unknownComponent = "UNKNOWN"

// FingerprintService derives a stable machine signature from hardware
// identifiers. The signature is computed once and cached for the process
// lifetime; it is not secret and is used only as key-derivation input and
// as a license binding check.
type FingerprintService struct {
	mu     sync.RWMutex
	cached string
	group  singleflight.Group
	logger *slog.Logger
}

// NewFingerprintService creates a new fingerprint service
func NewFingerprintService(logger *slog.Logger) *FingerprintService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FingerprintService{
		logger: logger.With(slog.String("component", "fingerprint")),
	}
}

// GetMachineSignature returns the base64-encoded SHA-256 machine signature.
// The first call probes the hardware; subsequent calls return the cached
// value. Concurrent first calls are collapsed into a single probe.
func (s *FingerprintService) GetMachineSignature() (string, error) {
	s.mu.RLock()
	if s.cached != "" {
		sig := s.cached
		s.mu.RUnlock()
		return sig, nil
	}
	s.mu.RUnlock()

	v, err, _ := s.group.Do("signature", func() (interface{}, error) {
		sig := s.computeSignature()
		s.mu.Lock()
		s.cached = sig
		s.mu.Unlock()
		return sig, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *FingerprintService) computeSignature() string {
	cpuID := s.probeCPUID()
	boardID := s.probeBoardID()
	diskID := s.probeDiskSerial()

	// All probes failing means the hardware query subsystem is unusable
	// on this platform; fall back to host-level identifiers.
	if cpuID == unknownComponent && boardID == unknownComponent && diskID == unknownComponent {
		s.logger.Warn("hardware probes unavailable, using host fallback signature")
		return hashSignature(s.fallbackSource())
	}

	source := fmt.Sprintf("CPU:%s|MB:%s|DISK:%s", cpuID, boardID, diskID)
	sig := hashSignature(source)

	s.logger.Debug("machine signature computed",
		slog.Bool("cpu_known", cpuID != unknownComponent),
		slog.Bool("board_known", boardID != unknownComponent),
		slog.Bool("disk_known", diskID != unknownComponent),
	)

	return sig
}

// probeCPUID returns a processor identifier from the first CPU entry.
func (s *FingerprintService) probeCPUID() string {
	infos, err := cpu.Info()
	if err != nil || len(infos) == 0 {
		s.logger.Debug("cpu probe failed", slog.Any("error", err))
		return unknownComponent
	}

	first := infos[0]
	id := strings.TrimSpace(first.PhysicalID)
	if id == "" {
		id = strings.TrimSpace(first.VendorID + " " + first.ModelName)
	}
	if id == "" {
		return unknownComponent
	}
	return id
}

// probeBoardID returns the host machine identifier, which on most
// platforms is derived from the motherboard or SMBIOS UUID.
func (s *FingerprintService) probeBoardID() string {
	info, err := host.Info()
	if err != nil || info == nil || strings.TrimSpace(info.HostID) == "" {
		s.logger.Debug("host probe failed", slog.Any("error", err))
		return unknownComponent
	}
	return strings.TrimSpace(info.HostID)
}

// probeDiskSerial returns the serial number of the first enumerated
// physical disk device.
func (s *FingerprintService) probeDiskSerial() string {
	partitions, err := disk.Partitions(false)
	if err != nil || len(partitions) == 0 {
		s.logger.Debug("disk partition probe failed", slog.Any("error", err))
		return unknownComponent
	}

	serial, err := disk.SerialNumber(partitions[0].Device)
	if err != nil || strings.TrimSpace(serial) == "" {
		s.logger.Debug("disk serial probe failed",
			slog.String("device", partitions[0].Device),
			slog.Any("error", err),
		)
		return unknownComponent
	}
	return strings.TrimSpace(serial)
}

// fallbackSource builds the machineName|userDomain|osVersion fallback
// string used when no hardware identifiers can be read. It is less stable
// across reinstalls but keeps licensing functional.
func (s *FingerprintService) fallbackSource() string {
	machineName, err := os.Hostname()
	if err != nil || machineName == "" {
		machineName = unknownComponent
	}

	userDomain := os.Getenv("USERDOMAIN")
	if userDomain == "" {
		if u, err := user.Current(); err == nil {
			userDomain = u.Username
		} else {
			userDomain = unknownComponent
		}
	}

	osVersion := runtime.GOOS
	if info, err := host.Info(); err == nil && info != nil {
		osVersion = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
	}

	return fmt.Sprintf("%s|%s|%s", machineName, userDomain, osVersion)
}

func hashSignature(source string) string {
	sum := sha256.Sum256([]byte(source))
	return base64.StdEncoding.EncodeToString(sum[:])
}
