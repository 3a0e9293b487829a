package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds settings for the relay and arena binaries
type Config struct {
	// relay
	RelayAddr     string
	PublicURL     string
	RelayDB       string // analytics database path, empty disables analytics
	ClientTimeout time.Duration
	PruneInterval time.Duration
	MaxPerIP      int

	// participant
	RelayURL        string
	PhysicsRate     int // Hz
	NetworkRate     int // Hz
	ClientRate      int // Hz
	FrameRate       int // Hz
	RoundLength     time.Duration
	PeerTimeout     time.Duration
	MaxPhysicsStep  time.Duration
	PeerCodec       string
	STUNURL         string
	ValidateAnchors bool
}

// Load reads an optional .env file and then the environment
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only
func FromEnv() Config {
	return Config{
		RelayAddr:     getEnv("RELAY_ADDR", ":8080"),
		PublicURL:     getEnv("PUBLIC_URL", "http://localhost:8080"),
		RelayDB:       getEnv("RELAY_DB", ""),
		ClientTimeout: getEnvDuration("CLIENT_TIMEOUT", 10*time.Second),
		PruneInterval: getEnvDuration("PRUNE_INTERVAL", time.Second),
		MaxPerIP:      getEnvInt("MAX_PER_IP", 8),

		RelayURL:        getEnv("RELAY_URL", "ws://localhost:8080/ws"),
		PhysicsRate:     getEnvInt("PHYSICS_HZ", 60),
		NetworkRate:     getEnvInt("NETWORK_HZ", 30),
		ClientRate:      getEnvInt("CLIENT_HZ", 30),
		FrameRate:       getEnvInt("FRAME_HZ", 60),
		RoundLength:     getEnvDuration("ROUND_LENGTH", 5*time.Minute),
		PeerTimeout:     getEnvDuration("PEER_TIMEOUT", 3*time.Second),
		MaxPhysicsStep:  getEnvDuration("MAX_PHYSICS_STEP", time.Second),
		PeerCodec:       getEnv("PEER_CODEC", "json"),
		STUNURL:         getEnv("STUN_URL", "stun:stun.l.google.com:19302"),
		ValidateAnchors: getEnvBool("VALIDATE_ANCHORS", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
