package controller

import (
	"context"

	"github.com/motioncore/stservoctl/protocol"
	"github.com/motioncore/stservoctl/session"
)

// eepromWriteU16 brackets a single two-byte EEPROM write with unlock/lock
// and the guard delays the hardware needs to settle each side.
func (c *Controller) eepromWriteU16(ctx context.Context, arb Arbiter, id byte, reg protocol.Register, v uint16) error {
	if _, err := arb.UnlockEEPROM(ctx, id); err != nil {
		return newKindError(KindEepromProtected, err)
	}
	ctxSleep(ctx, eepromGuardPause)
	if _, err := arb.WriteU16(ctx, id, reg, v); err != nil {
		return err
	}
	ctxSleep(ctx, eepromGuardPause)
	if _, err := arb.LockEEPROM(ctx, id); err != nil {
		return newKindError(KindEepromProtected, err)
	}
	return nil
}

// eepromWriteU8 is eepromWriteU16's single-byte counterpart.
func (c *Controller) eepromWriteU8(ctx context.Context, arb Arbiter, id byte, reg protocol.Register, v byte) error {
	if _, err := arb.UnlockEEPROM(ctx, id); err != nil {
		return newKindError(KindEepromProtected, err)
	}
	ctxSleep(ctx, eepromGuardPause)
	if _, err := arb.WriteU8(ctx, id, reg, v); err != nil {
		return err
	}
	ctxSleep(ctx, eepromGuardPause)
	if _, err := arb.LockEEPROM(ctx, id); err != nil {
		return newKindError(KindEepromProtected, err)
	}
	return nil
}

// writeAngleLimits brackets both angle-limit registers with a single
// unlock/lock pair, used by both start_motion's limit-apply step and
// set_angle_limits.
func (c *Controller) writeAngleLimits(ctx context.Context, arb Arbiter, id byte, min, max int) error {
	if _, err := arb.UnlockEEPROM(ctx, id); err != nil {
		return newKindError(KindEepromProtected, err)
	}
	ctxSleep(ctx, eepromGuardPause)
	if _, err := arb.WriteU16(ctx, id, protocol.RegMinAngleLim, uint16(min)); err != nil {
		return err
	}
	if _, err := arb.WriteU16(ctx, id, protocol.RegMaxAngleLim, uint16(max)); err != nil {
		return err
	}
	ctxSleep(ctx, eepromGuardPause)
	if _, err := arb.LockEEPROM(ctx, id); err != nil {
		return newKindError(KindEepromProtected, err)
	}
	return nil
}

// SetOffset writes the position-offset register through the EEPROM-protected
// sequence.
func (c *Controller) SetOffset(ctx context.Context, id session.ServoID, offset uint16) error {
	arb, err := c.requireArbiter()
	if err != nil {
		return err
	}
	return c.eepromWriteU16(ctx, arb, byte(id), protocol.RegOffset, offset)
}

// SetAngleLimits writes min/max angle-limit registers through the
// EEPROM-protected sequence.
func (c *Controller) SetAngleLimits(ctx context.Context, id session.ServoID, min, max int) error {
	arb, err := c.requireArbiter()
	if err != nil {
		return err
	}
	if min > max {
		return errInvalidArgument("set_angle_limits: min %d exceeds max %d", min, max)
	}
	return c.writeAngleLimits(ctx, arb, byte(id), min, max)
}

// SetDeadZone writes the CW/CCW deadband registers through the
// EEPROM-protected sequence.
func (c *Controller) SetDeadZone(ctx context.Context, id session.ServoID, cw, ccw byte) error {
	arb, err := c.requireArbiter()
	if err != nil {
		return err
	}
	if _, err := arb.UnlockEEPROM(ctx, byte(id)); err != nil {
		return newKindError(KindEepromProtected, err)
	}
	ctxSleep(ctx, eepromGuardPause)
	if _, err := arb.WriteU8(ctx, byte(id), protocol.RegCWDeadband, cw); err != nil {
		return err
	}
	if _, err := arb.WriteU8(ctx, byte(id), protocol.RegCCWDeadband, ccw); err != nil {
		return err
	}
	ctxSleep(ctx, eepromGuardPause)
	if _, err := arb.LockEEPROM(ctx, byte(id)); err != nil {
		return newKindError(KindEepromProtected, err)
	}
	return nil
}

// GetServoConfig reads the persistent configuration registers: offset, angle
// limits, and both deadbands.
func (c *Controller) GetServoConfig(ctx context.Context, id session.ServoID) (ServoConfig, error) {
	arb, err := c.requireArbiter()
	if err != nil {
		return ServoConfig{}, err
	}

	offset, _, err := arb.ReadU16(ctx, byte(id), protocol.RegOffset)
	if err != nil {
		return ServoConfig{}, err
	}
	min, _, err := arb.ReadU16(ctx, byte(id), protocol.RegMinAngleLim)
	if err != nil {
		return ServoConfig{}, err
	}
	max, _, err := arb.ReadU16(ctx, byte(id), protocol.RegMaxAngleLim)
	if err != nil {
		return ServoConfig{}, err
	}
	cw, _, err := arb.ReadU8(ctx, byte(id), protocol.RegCWDeadband)
	if err != nil {
		return ServoConfig{}, err
	}
	ccw, _, err := arb.ReadU8(ctx, byte(id), protocol.RegCCWDeadband)
	if err != nil {
		return ServoConfig{}, err
	}

	return ServoConfig{
		Offset:      int(offset),
		AngleMin:    int(min),
		AngleMax:    int(max),
		CWDeadband:  int(cw),
		CCWDeadband: int(ccw),
	}, nil
}

// ChangeID moves a servo from old to new, verifying new is free and old
// answers before the rename, and that new answers afterward.
func (c *Controller) ChangeID(ctx context.Context, old, new_ byte) error {
	arb, err := c.requireArbiter()
	if err != nil {
		return err
	}
	if old == new_ {
		return errInvalidArgument("change_id: old and new id are both %d", old)
	}
	if !session.ServoID(old).Valid() || !session.ServoID(new_).Valid() {
		return errInvalidArgument("change_id: ids must be in [0, %d]", session.MaxServoID)
	}

	if _, result, err := arb.Ping(ctx, old); err != nil || result != protocol.Success {
		return newKindError(KindServoNotFound, err)
	}
	if _, result, err := arb.Ping(ctx, new_); err == nil && result == protocol.Success {
		return newKindError(KindIDInUse, nil)
	}

	if _, err := arb.UnlockEEPROM(ctx, old); err != nil {
		return newKindError(KindEepromProtected, err)
	}
	if _, err := arb.WriteU8(ctx, old, protocol.RegID, new_); err != nil {
		return err
	}
	if _, err := arb.LockEEPROM(ctx, new_); err != nil {
		return newKindError(KindEepromProtected, err)
	}

	ctxSleep(ctx, changeIDVerifyPause)

	if _, result, err := arb.Ping(ctx, new_); err != nil || result != protocol.Success {
		return newKindError(KindTransportTimeout, err)
	}
	return nil
}

// EnableTorque / DisableTorque toggle a servo's torque-enable register.
func (c *Controller) EnableTorque(ctx context.Context, id session.ServoID) error {
	arb, err := c.requireArbiter()
	if err != nil {
		return err
	}
	_, err = arb.WriteTorque(ctx, byte(id), true)
	return err
}

func (c *Controller) DisableTorque(ctx context.Context, id session.ServoID) error {
	arb, err := c.requireArbiter()
	if err != nil {
		return err
	}
	_, err = arb.WriteTorque(ctx, byte(id), false)
	return err
}

// SetPosition issues a single combined position/speed/acceleration command.
func (c *Controller) SetPosition(ctx context.Context, id session.ServoID, pos, speed, acc int) error {
	arb, err := c.requireArbiter()
	if err != nil {
		return err
	}
	_, err = arb.WritePosEx(ctx, byte(id), uint16(pos), uint16(speed), byte(acc))
	return err
}

// SetSpeed reads the current position and acceleration, then reissues a
// combined command preserving both while updating speed.
func (c *Controller) SetSpeed(ctx context.Context, id session.ServoID, speed int) error {
	arb, err := c.requireArbiter()
	if err != nil {
		return err
	}
	pos, _, err := arb.ReadU16(ctx, byte(id), protocol.RegPresentPosition)
	if err != nil {
		return err
	}
	acc, _, err := arb.ReadU8(ctx, byte(id), protocol.RegAcceleration)
	if err != nil {
		return err
	}
	_, err = arb.WritePosEx(ctx, byte(id), pos, uint16(speed), acc)
	return err
}

// SetAcceleration reads the current position and goal speed, then reissues a
// combined command preserving both while updating acceleration.
func (c *Controller) SetAcceleration(ctx context.Context, id session.ServoID, acc int) error {
	arb, err := c.requireArbiter()
	if err != nil {
		return err
	}
	pos, _, err := arb.ReadU16(ctx, byte(id), protocol.RegPresentPosition)
	if err != nil {
		return err
	}
	speed, _, err := arb.ReadU16(ctx, byte(id), protocol.RegGoalSpeed)
	if err != nil {
		return err
	}
	_, err = arb.WritePosEx(ctx, byte(id), pos, speed, byte(acc))
	return err
}
