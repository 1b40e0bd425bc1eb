package model

import "time"

// ObjectRecord — серверная модель зашифрованного объекта. Запись
// неизменяема после создания (кроме удаления). Ключ и IV хранятся
// только в обёрнутом виде; хеш считается по открытому тексту до
// шифрования.
type ObjectRecord struct {
	ID          string `gorm:"primaryKey;type:uuid"`
	OwnerUserID string `gorm:"not null;index;type:uuid"` // ссылка на users.id

	// Связи
	Owner *User `gorm:"foreignKey:OwnerUserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	OriginalName string `gorm:"not null"`
	ContentType  string

	StorageLocator string `gorm:"not null"` // локатор в BlobStore
	ContentHash    string `gorm:"not null"` // SHA-256 hex открытого текста
	PlaintextSize  int64  `gorm:"not null"`
	CiphertextSize int64  `gorm:"not null"`

	// base64(wrapIV ‖ ciphertext) для каждого значения
	WrappedKey string `gorm:"not null"`
	WrappedIV  string `gorm:"not null"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
