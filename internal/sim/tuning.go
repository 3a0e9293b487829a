package sim

// Movement. Speeds are map widths per second.
const (
	Turn       = 0.8   // radians per second at full turn input
	BrakeTurn  = 0.6   // extra turn rate while braking
	Accel      = 0.015 // forward throttle
	Brake      = 0.03  // reverse throttle
	Drag       = 0.12  // fraction of speed lost per second
	WallBounce = 0.6   // speed kept after hitting a wall

	SwingAccel    = 0.01
	SwingCooldown = 1.5 // seconds before a released anchor can be grabbed again
)

// Projectiles
const (
	BulletSpeed    = 0.1
	BulletLifetime = 3.0 // seconds
)

// Vitals
const (
	MaxHealth       = 100.0
	RegenDelay      = 3.0  // seconds after damage before healing starts
	RegenRate       = 10.0 // health per second
	HealthSmoothing = 5.0  // how fast the displayed health chases the real value, per second
)

// Explosions
const (
	ExplosionRadius     = 0.04
	ExplosionSpeed      = 0.1
	ExplosionDamage     = 100.0
	SelfExplosionSpeed  = 0.2
	SelfExplosionDamage = 50.0
	ExplosionLifetime   = 0.3 // seconds a client keeps an explosion around for drawing
)
