// file — хранилище учётных данных в одном зашифрованном файле.
//
// Содержимое (JSON-словарь ключ→значение) шифруется NaCl secretbox.
// Ключ шифрования выводится scrypt из парольной фразы и случайной соли
// из заголовка файла; без фразы используется случайный ключ из файла
// ".key" рядом с хранилищем. Каталог создаётся с правами 0700, файлы — 0600,
// запись атомарная (временный файл + rename).
package file

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pribylovaa/go-cheffrey-client/internal/storage"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	dataFile = "credentials.enc"
	keyFile  = ".key"

	formatVersion = 1
	saltLen       = 16
	nonceLen      = 24
	keyLen        = 32

	// Параметры scrypt (рекомендованные для интерактивного входа).
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var (
	// ErrDecrypt — неверная парольная фраза или повреждённый файл.
	ErrDecrypt = errors.New("cannot decrypt credentials file")
)

// envelope — формат файла на диске.
type envelope struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt,omitempty"`
	Nonce   []byte `json:"nonce"`
	Box     []byte `json:"box"`
}

// Store — зашифрованный файл с токенами.
type Store struct {
	dir        string
	passphrase string

	mu   sync.Mutex
	salt []byte
	key  *[keyLen]byte
}

// New открывает (или создаёт) хранилище в каталоге dir.
// Сразу проверяет, что существующий файл расшифровывается.
func New(dir, passphrase string) (*Store, error) {
	const op = "storage.file.New"

	if dir == "" {
		return nil, fmt.Errorf("%s: empty dir", op)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := &Store{dir: dir, passphrase: passphrase}

	env, err := s.readEnvelope()
	switch {
	case errors.Is(err, os.ErrNotExist):
		salt := make([]byte, saltLen)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.salt = salt
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	default:
		s.salt = env.Salt
	}

	if err := s.deriveKey(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if env != nil {
		if _, err := s.open(env); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return s, nil
}

// Path возвращает путь к файлу данных.
func (s *Store) Path() string { return filepath.Join(s.dir, dataFile) }

func (s *Store) Get(_ context.Context, key string) (string, error) {
	const op = "storage.file.Get"

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	v, ok := m[key]
	if !ok {
		return "", storage.ErrNotFound
	}

	return v, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	const op = "storage.file.Set"

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m[key] = value

	if err := s.save(m); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	const op = "storage.file.Delete"

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)

	if err := s.save(m); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) Close() error { return nil }

// deriveKey готовит ключ шифрования: scrypt(passphrase, salt) или ключ из .key.
func (s *Store) deriveKey() error {
	var key [keyLen]byte

	if s.passphrase != "" {
		raw, err := scrypt.Key([]byte(s.passphrase), s.salt, scryptN, scryptR, scryptP, keyLen)
		if err != nil {
			return err
		}
		copy(key[:], raw)
		s.key = &key
		return nil
	}

	path := filepath.Join(s.dir, keyFile)
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		raw = make([]byte, keyLen)
		if _, err := io.ReadFull(rand.Reader, raw); err != nil {
			return err
		}
		if err := writeAtomic(path, raw); err != nil {
			return err
		}
	case err != nil:
		return err
	case len(raw) != keyLen:
		return fmt.Errorf("key file %q: %w", path, ErrDecrypt)
	}

	copy(key[:], raw)
	s.key = &key
	return nil
}

func (s *Store) readEnvelope() (*envelope, error) {
	raw, err := os.ReadFile(s.Path())
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if env.Version != formatVersion || len(env.Nonce) != nonceLen {
		return nil, fmt.Errorf("%w: unsupported format", ErrDecrypt)
	}

	return &env, nil
}

func (s *Store) open(env *envelope) (map[string]string, error) {
	var nonce [nonceLen]byte
	copy(nonce[:], env.Nonce)

	plain, ok := secretbox.Open(nil, env.Box, &nonce, s.key)
	if !ok {
		return nil, ErrDecrypt
	}

	m := make(map[string]string)
	if err := json.Unmarshal(plain, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return m, nil
}

// load читает и расшифровывает текущее содержимое; отсутствие файла — пустой словарь.
func (s *Store) load() (map[string]string, error) {
	env, err := s.readEnvelope()
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}

	return s.open(env)
}

func (s *Store) save(m map[string]string) error {
	plain, err := json.Marshal(m)
	if err != nil {
		return err
	}

	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return err
	}

	env := envelope{
		Version: formatVersion,
		Nonce:   nonce[:],
		Box:     secretbox.Seal(nil, plain, &nonce, s.key),
	}
	if s.passphrase != "" {
		env.Salt = s.salt
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	return writeAtomic(s.Path(), raw)
}

// writeAtomic пишет во временный файл с правами 0600 и переименовывает его.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

var _ storage.KV = (*Store)(nil)
