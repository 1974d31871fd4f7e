package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"phRestore/internal/auth"
	"phRestore/internal/config"
	"phRestore/internal/database"
)

func main() {
	var (
		email   = flag.String("email", "", "要创建的账号邮箱")
		keysDir = flag.String("gen-keys", "", "在该目录生成 JWT RSA 密钥对（jwt_private.pem / jwt_public.pem）")
		keyBits = flag.Int("key-bits", 2048, "RSA 密钥长度")
	)
	flag.Parse()

	if *keysDir == "" && *email == "" {
		flag.Usage()
		os.Exit(2)
	}

	if *keysDir != "" {
		if err := writeKeyPair(*keysDir, *keyBits); err != nil {
			log.Fatalf("generate jwt keys: %v", err)
		}
		fmt.Printf("已生成 JWT 密钥对: %s\n", *keysDir)
	}

	if *email != "" {
		if err := createAccount(*email); err != nil {
			log.Fatalf("create account: %v", err)
		}
	}
}

func createAccount(rawEmail string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(rawEmail))
	if err != nil {
		return fmt.Errorf("invalid email %q: %w", rawEmail, err)
	}
	email := strings.ToLower(addr.Address)

	dbCfg, err := databaseConfigFromEnv()
	if err != nil {
		return err
	}
	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	var existing database.User
	switch err := db.Where("email = ?", email).First(&existing).Error; {
	case err == nil:
		return fmt.Errorf("user %q already exists", email)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return fmt.Errorf("query user: %w", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		return err
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := database.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hashed,
	}
	if err := db.Create(&user).Error; err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	fmt.Printf("已创建账号：\n")
	fmt.Printf("用户 ID: %s\n", user.ID)
	fmt.Printf("邮箱: %s\n", email)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：该密码仅显示一次。\n")
	return nil
}

func writeKeyPair(dir string, bits int) error {
	privatePEM, publicPEM, err := auth.GenerateKeyPairPEM(bits)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	privatePath := filepath.Join(dir, "jwt_private.pem")
	if _, err := os.Stat(privatePath); err == nil {
		return fmt.Errorf("%s already exists", privatePath)
	}
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "jwt_public.pem"), publicPEM, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

// databaseConfigFromEnv 只读取数据库相关变量，不要求 MinIO/Redis 等配置齐全。
func databaseConfigFromEnv() (config.DatabaseConfig, error) {
	cfg := config.DatabaseConfig{
		Host:     envOr("DATABASE_HOST", "localhost"),
		Port:     5432,
		Name:     os.Getenv("POSTGRES_DB"),
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		SSLMode:  envOr("DATABASE_SSLMODE", "disable"),
	}
	if raw := strings.TrimSpace(os.Getenv("DATABASE_PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
		}
		cfg.Port = port
	}

	switch {
	case cfg.Name == "":
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	case cfg.User == "":
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	case cfg.Password == "":
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func generateRandomPassword(bytesLen int) (string, error) {
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
