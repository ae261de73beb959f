package physics

// Mode is the player's current movement mode.
type Mode int

const (
	ModeWalking Mode = iota
	ModeFlying
	ModeSwimming
)

// Parameters bundles the externally configurable movement tuning values.
// All are in metres/second, metres/second^2, or unitless friction
// coefficients.
type Parameters struct {
	WalkSpeed      float32
	SprintSpeed    float32
	FlySpeed       float32
	SwimSpeed      float32
	Gravity        float32
	JumpForce      float32
	GroundFriction float32
	AirFriction    float32
	WaterFriction  float32
	Acceleration   float32
}

// DefaultParameters returns a reasonable baseline movement tuning.
func DefaultParameters() Parameters {
	return Parameters{
		WalkSpeed:      4.3,
		SprintSpeed:    5.6,
		FlySpeed:       10.0,
		SwimSpeed:      2.2,
		Gravity:        20.0,
		JumpForce:      7.5,
		GroundFriction: 8.0,
		AirFriction:    0.5,
		WaterFriction:  3.0,
		Acceleration:   60.0,
	}
}

// Input is one tick's worth of movement intent.
type Input struct {
	WishDirection Vec3 // need not be normalized
	WishSprint    bool
	WishJump      bool
	Grounded      bool
	InWater       bool
	Mode          Mode
	DeltaTime     float32
}

// Integrate advances velocity by one tick according to Input and
// Parameters: water overrides ground/air, grounded+non-flying uses ground
// movement, otherwise air movement; gravity applies unless flying or in
// water; jump sets an immediate vertical velocity and is consumed, and a
// ground jump's velocity is not reduced by gravity on the tick it is taken.
func Integrate(velocity Vec3, in Input, p Parameters) Vec3 {
	groundJump := false
	switch {
	case in.InWater:
		velocity = applyWaterMovement(velocity, in, p)
	case in.Grounded && in.Mode != ModeFlying:
		velocity = applyGroundMovement(velocity, in, p)
		groundJump = in.WishJump
	default:
		velocity = applyAirMovement(velocity, in, p)
	}

	if in.Mode != ModeFlying && !in.InWater && !groundJump {
		velocity.Y -= p.Gravity * in.DeltaTime
	}

	if in.Mode == ModeFlying {
		if velocity.Y > p.FlySpeed {
			velocity.Y = p.FlySpeed
		}
		if velocity.Y < -p.FlySpeed {
			velocity.Y = -p.FlySpeed
		}
	}

	return velocity
}

func applyGroundMovement(v Vec3, in Input, p Parameters) Vec3 {
	v = applyFriction(v, in.WishDirection, in.DeltaTime, p.GroundFriction)

	wishSpeed := p.WalkSpeed
	if in.WishSprint {
		wishSpeed = p.SprintSpeed
	}
	v = accelerate(v, in.WishDirection, p.Acceleration, in.DeltaTime, wishSpeed)

	if in.WishJump {
		v.Y = p.JumpForce
	}
	return v
}

func applyAirMovement(v Vec3, in Input, p Parameters) Vec3 {
	v = applyFriction(v, in.WishDirection, in.DeltaTime, p.AirFriction)

	var wishSpeed float32
	switch {
	case in.Mode == ModeFlying:
		wishSpeed = p.FlySpeed
	case in.WishSprint:
		wishSpeed = p.SprintSpeed
	default:
		wishSpeed = p.WalkSpeed
	}
	v = accelerate(v, in.WishDirection, p.Acceleration*0.5, in.DeltaTime, wishSpeed)

	if in.Mode == ModeFlying && in.WishJump {
		v.Y = p.FlySpeed
	}
	return v
}

func applyWaterMovement(v Vec3, in Input, p Parameters) Vec3 {
	v = applyFriction(v, in.WishDirection, in.DeltaTime, p.WaterFriction)
	v = accelerate(v, in.WishDirection, p.Acceleration*0.7, in.DeltaTime, p.SwimSpeed)

	if in.WishJump {
		v.Y = p.JumpForce * 0.5
	}
	return v
}

// applyFriction slows v when there is no wish direction: v *= max(1 -
// k*dt, 0), expressed as a speed-drop (matching the original's
// speed/drop formulation so the two are numerically identical).
func applyFriction(v, wishDir Vec3, dt, frictionCoefficient float32) Vec3 {
	if wishDir.LengthSq() > 0 {
		return v
	}

	speed := v.Length()
	if speed <= 0 {
		return Vec3{}
	}

	drop := speed * frictionCoefficient * dt
	newSpeed := speed - drop
	if newSpeed < 0 {
		newSpeed = 0
	}
	if newSpeed == speed {
		return v
	}
	return v.Scale(newSpeed / speed)
}

// accelerate adds acceleration toward normalize(wishDir) and clips the
// along-wish speed component to targetSpeed, matching the original's
// accelerate-then-clamp-dot-product approach rather than a hard cap.
func accelerate(v, wishDir Vec3, acceleration, dt, targetSpeed float32) Vec3 {
	if wishDir.LengthSq() <= 0 {
		return v
	}
	dir := wishDir.Normalize()
	v = v.Add(dir.Scale(acceleration * dt))

	currentSpeed := v.Dot(dir)
	if currentSpeed > targetSpeed {
		v = v.Sub(dir.Scale(currentSpeed - targetSpeed))
	}
	return v
}
