package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeyringStorage(t *testing.T) {
	keyring.MockInit()
	storage := NewKeyringStorage("bbr-test")

	if _, err := storage.Load("ci"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() on empty keyring error = %v, want ErrNotFound", err)
	}

	data := []byte(`{"username":"builder","token":"abc"}`)
	if err := storage.Save("ci", data); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := storage.Load("ci")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(loaded) != string(data) {
		t.Errorf("Load() = %s, want %s", loaded, data)
	}

	if err := storage.Delete("ci"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := storage.Delete("ci"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestEncryptedFileStorage(t *testing.T) {
	tmpDir := t.TempDir()

	storage, err := NewEncryptedFileStorage(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create encrypted storage: %v", err)
	}

	testData := []byte(`{"username":"builder","token":"secret-token"}`)
	if err := storage.Save("default", testData); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	credFile := filepath.Join(tmpDir, "credentials", "default.enc")
	encryptedData, err := os.ReadFile(credFile)
	if err != nil {
		t.Fatalf("Failed to read encrypted file: %v", err)
	}
	if string(encryptedData) == string(testData) {
		t.Error("Data was not encrypted")
	}

	loaded, err := storage.Load("default")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(loaded) != string(testData) {
		t.Errorf("Loaded data doesn't match original. Got: %s, Want: %s", loaded, testData)
	}

	if err := storage.Delete("default"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if _, err := os.Stat(credFile); !os.IsNotExist(err) {
		t.Error("File was not deleted")
	}
	if _, err := storage.Load("default"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after delete error = %v, want ErrNotFound", err)
	}
}

func TestEncryptionRoundTrip(t *testing.T) {
	storage, err := NewEncryptedFileStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create encrypted storage: %v", err)
	}

	testCases := []string{
		"simple text",
		`{"username":"u","token":"t"}`,
		"text with special characters: üöä@#$%^&*()",
		"",
	}

	for i, testData := range testCases {
		encrypted, err := storage.encrypt([]byte(testData))
		if err != nil {
			t.Errorf("Test case %d: encrypt failed: %v", i, err)
			continue
		}
		decrypted, err := storage.decrypt(encrypted)
		if err != nil {
			t.Errorf("Test case %d: decrypt failed: %v", i, err)
			continue
		}
		if string(decrypted) != testData {
			t.Errorf("Test case %d: roundtrip failed. Got: %s, Want: %s", i, decrypted, testData)
		}
	}

	if _, err := storage.decrypt([]byte("short")); err == nil {
		t.Error("decrypt() of truncated ciphertext should fail")
	}
}

func TestGetOrCreateEncryptionKey(t *testing.T) {
	tmpDir := t.TempDir()

	key1, err := getOrCreateEncryptionKey(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}
	if len(key1) != 32 {
		t.Errorf("Key length is %d, expected 32", len(key1))
	}

	key2, err := getOrCreateEncryptionKey(tmpDir)
	if err != nil {
		t.Fatalf("Failed to load key: %v", err)
	}
	if string(key1) != string(key2) {
		t.Error("Loaded key doesn't match created key")
	}
}
