package push

import (
	"encoding/json"
	"os"
	"path/filepath"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/shopdesk/supportchat/internal/logger"
)

// VAPIDKeys — пара ключей для Web Push (VAPID).
type VAPIDKeys struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// ResolveVAPIDKeys берёт ключи из конфига; если их нет и задан keysFile,
// читает файл или генерирует новую пару и сохраняет её туда. Без файла возвращает nil (пуши выключены).
func ResolveVAPIDKeys(public, private, keysFile string) (*VAPIDKeys, error) {
	if public != "" && private != "" {
		return &VAPIDKeys{PublicKey: public, PrivateKey: private}, nil
	}
	if keysFile == "" {
		return nil, nil
	}
	if keys, err := loadVAPIDKeys(keysFile); err == nil && keys.PublicKey != "" && keys.PrivateKey != "" {
		return keys, nil
	}
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return nil, err
	}
	keys := &VAPIDKeys{PublicKey: pub, PrivateKey: priv}
	if err := saveVAPIDKeys(keysFile, keys); err != nil {
		logger.Errorf("push: could not save VAPID keys to %s: %v (using generated keys)", keysFile, err)
		return keys, nil
	}
	logger.Infof("push: VAPID keys generated and saved to %s", keysFile)
	return keys, nil
}

func loadVAPIDKeys(path string) (*VAPIDKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keys VAPIDKeys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, err
	}
	return &keys, nil
}

func saveVAPIDKeys(path string, keys *VAPIDKeys) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
