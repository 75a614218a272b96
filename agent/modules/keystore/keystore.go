package keystore

import (
	"encoding/json"
	"fmt"

	"github.com/meetd/meetd/crypto"

	"github.com/syndtr/goleveldb/leveldb"
)

const (
	secretsKey = "secrets"
)

type KeyStore interface {
	PutKeys(username string, keyPair *crypto.Keypair) error
	LoadKeys(userName string) (*crypto.Keypair, error)
	Close() error
}

// storedKeyPair is the at-rest form; only the private seed is kept,
// the public half is derivable.
type storedKeyPair struct {
	PrivateKey string `json:"private_key"`
}

// LevelDBKeyStore keeps agent signing keys in a dedicated leveldb.
// The target state is an encrypted store with password authentication.
type LevelDBKeyStore struct {
	keystoreDb *leveldb.DB
}

func NewLevelDBKeyStore(keystorePath string) (KeyStore, error) {
	db, err := leveldb.OpenFile(keystorePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open keystore: %w", err)
	}

	keystore := &LevelDBKeyStore{
		keystoreDb: db,
	}

	if _, err := keystore.keystoreDb.Get([]byte(secretsKey), nil); err != nil {
		if err := keystore.initJsonKey(secretsKey, map[string]*storedKeyPair{}); err != nil {
			return nil, fmt.Errorf("failed to init %s storage: %w", secretsKey, err)
		}
	}

	return keystore, nil
}

func (s *LevelDBKeyStore) PutKeys(username string, keyPair *crypto.Keypair) error {
	bz, err := s.keystoreDb.Get([]byte(secretsKey), nil)
	if err != nil {
		return fmt.Errorf("failed to read keystore: %w", err)
	}

	var keyPairs = map[string]*storedKeyPair{}
	if err := json.Unmarshal(bz, &keyPairs); err != nil {
		return fmt.Errorf("failed to unmarshal key pairs: %w", err)
	}

	keyPairs[username] = &storedKeyPair{PrivateKey: keyPair.PrivateKeyBase64()}

	keyPairsBz, err := json.Marshal(keyPairs)
	if err != nil {
		return fmt.Errorf("failed to marshal key pair: %w", err)
	}

	if err = s.keystoreDb.Put([]byte(secretsKey), keyPairsBz, nil); err != nil {
		return fmt.Errorf("failed to put key pairs: %w", err)
	}

	return nil
}

func (s *LevelDBKeyStore) LoadKeys(userName string) (*crypto.Keypair, error) {
	bz, err := s.keystoreDb.Get([]byte(secretsKey), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}

	var keyPairs = map[string]*storedKeyPair{}
	if err := json.Unmarshal(bz, &keyPairs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal key pairs: %w", err)
	}

	stored, ok := keyPairs[userName]
	if !ok {
		return nil, fmt.Errorf("no key pair found for user %s", userName)
	}

	keyPair, err := crypto.KeypairFromPrivateKeyBase64(stored.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to restore key pair: %w", err)
	}

	return keyPair, nil
}

func (s *LevelDBKeyStore) Close() error {
	return s.keystoreDb.Close()
}

func (s *LevelDBKeyStore) initJsonKey(key string, data interface{}) error {
	if _, err := s.keystoreDb.Get([]byte(key), nil); err != nil {
		dataBz, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal storage structure: %w", err)
		}
		if err = s.keystoreDb.Put([]byte(key), dataBz, nil); err != nil {
			return fmt.Errorf("failed to init keystore state: %w", err)
		}
	}

	return nil
}
