// Package vault provides optional at-rest encryption for HEAVY-zone assets.
// It is the same AES-256-GCM construction as the teacher's pkg/security
// SecretsManager, rebound from types.Secret to *types.HeavyHandle: SealHandle
// wraps a handle's plaintext []byte payload behind a fresh handle carrying
// the ciphertext, OpenHandle reverses it (Seal/Open work on raw bytes). Nothing in pkg/store or pkg/guard calls
// this automatically — a process opts a HEAVY write into it explicitly.
package vault
