package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/cloak/internal/config"
	"github.com/illarion/cloak/internal/crypto"
	"github.com/illarion/cloak/internal/stego"
	"github.com/illarion/cloak/internal/storage"
)

func newCodec(cfg *config.Config, bits int, trailer bool) *stego.Codec {
	if bits == 0 {
		bits = cfg.Stego.BitsPerUnit
	}
	codec, err := stego.New(stego.Options{
		BitsPerUnit: bits,
		Trailer:     trailer,
		Logger:      cfg.NewLogger(),
	})
	if err != nil {
		HandleError(err)
	}
	return codec
}

// Hide embeds payloadPath, or the container itself when empty, into the
// carrier and writes the result to outPath
func Hide(file, carrierPath, outPath, payloadPath string, bits int, trailer bool) {
	cfg := LoadConfig(file)
	codec := newCodec(cfg, bits, trailer)
	if payloadPath == "" {
		payloadPath = cfg.Vault.File
	}

	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		HandleError(fmt.Errorf("failed to read payload: %w", err))
	}
	defer crypto.ClearBytes(payload)

	if err := codec.HideFile(carrierPath, outPath, payload); err != nil {
		HandleError(err)
	}

	fmt.Printf("hidden: %s -> %s (%s)\n", payloadPath, outPath, formatSize(int64(len(payload))))
}

// Reveal extracts the payload hidden in carrierPath into outPath
func Reveal(file, carrierPath, outPath string, bits int) {
	codec := newCodec(LoadConfig(file), bits, false)

	payload, err := codec.ExtractFile(carrierPath)
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(payload)

	if err := storage.WriteFileAtomic(outPath, payload, storage.FilePerm); err != nil {
		HandleError(fmt.Errorf("failed to write %s: %w", outPath, err))
	}

	fmt.Printf("revealed: %s -> %s (%s)\n", carrierPath, outPath, formatSize(int64(len(payload))))
}

// Capacity reports how many payload bytes a carrier can hold
func Capacity(file, carrierPath string, bits int, trailer bool) {
	codec := newCodec(LoadConfig(file), bits, trailer)

	n, err := codec.CapacityFile(carrierPath)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("%s: %s (%d bytes)\n", carrierPath, formatSize(int64(n)), n)
}
