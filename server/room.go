package server

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"fishshoot.dev/server/anticheat"
	"fishshoot.dev/server/audit"
	"fishshoot.dev/server/config"
	"fishshoot.dev/server/game"
	"fishshoot.dev/server/rtp"
	"fishshoot.dev/server/wire"
)

// AuditSink receives the durable output of a room: kill receipts as
// they are minted and the room record at close. audit.Store satisfies
// it directly.
type AuditSink interface {
	AppendReceipt(roomID string, r *audit.Receipt) error
	PutRoomRecord(rec audit.RoomRecord) error
}

// Room phases carried in snapshots.
const (
	phaseLobby uint8 = iota
	phasePlaying
)

// Balance update reasons.
const (
	balanceReasonJoin uint8 = iota
	balanceReasonShot
	balanceReasonKill
)

// Gameplay tuning for area and beam fire.
const (
	aoeRadius      = 120.0
	laserHalfWidth = 40.0

	startingBalanceFp = 1_000 * config.MoneyScale

	roomCmdBacklog = 256
)

type member struct {
	sess      Sender
	player    wire.PlayerID
	name      string
	seat      uint8
	weapon    string
	balanceFp int64
	lastShot  map[string]int64
}

type bulletMeta struct {
	owner  wire.PlayerID
	weapon string
	seq    uint32
}

// Room is one game instance: the simulation world, the payout engine,
// the anomaly detector, and the receipt chain, all owned by a single
// loop goroutine. Connections talk to a room only through posted
// commands, so nothing here locks.
type Room struct {
	code       string
	cfg        config.Config
	rules      audit.Rules
	sink       AuditSink
	maxPlayers int

	world    *game.World
	engine   *rtp.Engine
	detector *anticheat.Detector
	chain    *audit.Chain
	seedHash [32]byte

	cmds    chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	onEmpty func(code string)
	nowMs   func() int64

	phase   uint8
	host    wire.PlayerID
	members map[wire.PlayerID]*member
	bullets map[uint32]bulletMeta
}

// newRoom assembles a room. Spawn decisions replay from seed; outcome
// rolls come from the engine's CSPRNG and are independent of it.
func newRoom(code string, cfg config.Config, rules audit.Rules, sink AuditSink, seed uint64, maxPlayers int, onEmpty func(string)) *Room {
	spawner := game.NewSpawner(cfg, seed)
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		code:       code,
		cfg:        cfg,
		rules:      rules,
		sink:       sink,
		maxPlayers: maxPlayers,
		world:      game.NewWorld(spawner),
		engine:     rtp.NewEngine(cfg, rtp.NewCryptoRoller()),
		detector:   anticheat.NewDetector(cfg),
		chain:      audit.NewChain(code, spawner.SeedCommitment()),
		seedHash:   spawner.SeedCommitment(),
		cmds:       make(chan func(), roomCmdBacklog),
		ctx:        ctx,
		cancel:     cancel,
		onEmpty:    onEmpty,
		nowMs:      func() int64 { return time.Now().UnixMilli() },
		members:    make(map[wire.PlayerID]*member),
		bullets:    make(map[uint32]bulletMeta),
	}
	return r
}

// start launches the simulation loop.
func (r *Room) start() {
	go game.Run(r.ctx, r.world, r)
}

// Code returns the join code.
func (r *Room) Code() string { return r.code }

// post queues a command for the loop; false means the room has closed.
func (r *Room) post(fn func()) bool {
	select {
	case r.cmds <- fn:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// call posts a command and waits for it to run.
func (r *Room) call(fn func()) bool {
	done := make(chan struct{})
	if !r.post(func() { fn(); close(done) }) {
		return false
	}
	select {
	case <-done:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// HandleStep runs on every simulation tick: drain pending commands,
// then react to what the tick produced.
func (r *Room) HandleStep(tick uint64, res game.StepResult) {
	for {
		select {
		case fn := <-r.cmds:
			fn()
		default:
			goto drained
		}
	}
drained:
	nowMs := r.nowMs()

	for _, f := range res.Spawned {
		r.announceSpawn(f)
	}
	for _, id := range res.AgedOut {
		r.engine.ClearTargetStates(id)
	}
	for _, id := range res.SpentBullet {
		if meta, ok := r.bullets[id]; ok {
			delete(r.bullets, id)
			r.observeShot(meta.owner, meta.weapon, false, nowMs)
		}
	}
	for _, h := range res.Hits {
		r.resolveHit(h, nowMs)
	}
}

// send delivers one packet to a member, logging delivery failures. A
// failed send is not an eviction: the connection's own read loop
// notices the broken socket and runs the normal leave path.
func (r *Room) send(m *member, id wire.PacketID, payload []byte) {
	if err := m.sess.Send(id, payload); err != nil {
		log.Debugf("room %s: %s to %s failed: %v", r.code, id, m.name, err)
	}
}

// Broadcast serializes the room snapshot on the 20 Hz boundary.
func (r *Room) Broadcast(tick uint64) {
	payload := r.snapshot(tick).Encode()
	for _, m := range r.members {
		r.send(m, wire.PacketRoomSnapshot, payload)
	}
}

func (r *Room) snapshot(tick uint64) wire.RoomSnapshot {
	snap := wire.RoomSnapshot{
		Tick:         tick,
		ServerTS:     uint64(r.nowMs()),
		RoomCode:     r.code,
		Phase:        r.phase,
		BossActive:   r.world.BossActive(),
		RulesVersion: uint16(r.rules.Version),
	}
	for _, f := range r.world.LiveFish() {
		snap.Fish = append(snap.Fish, wire.FishRecord{
			TargetID: f.ID,
			Species:  uint8(f.SpecID),
			Tier:     uint8(f.Tier),
			HP:       uint16(f.HP),
			MaxHP:    uint16(f.MaxHP),
			X:        float32(f.X),
			Z:        float32(f.Z),
			VX:       float32(f.VX),
			VZ:       float32(f.VZ),
			Rotation: float32(f.Rotation),
		})
	}
	for _, b := range r.world.LiveBullets() {
		snap.Bullets = append(snap.Bullets, wire.BulletRecord{
			BulletID: b.ID,
			Owner:    b.Owner,
			X:        float32(b.X),
			Z:        float32(b.Z),
			VX:       float32(b.VX),
			VZ:       float32(b.VZ),
		})
	}
	for _, m := range r.sortedMembers() {
		snap.Players = append(snap.Players, wire.PlayerRecord{
			Player:    m.player,
			BalanceFp: m.balanceFp,
			Weapon:    m.weapon,
		})
	}
	return snap
}

func (r *Room) sortedMembers() []*member {
	out := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seat < out[j].seat })
	return out
}

func (r *Room) announceSpawn(f *game.Fish) {
	var flags uint8
	id := wire.PacketFishSpawn
	if f.Boss {
		flags |= wire.FishFlagBoss
		id = wire.PacketBossSpawn
	}
	if f.Special {
		flags |= wire.FishFlagSpecial
	}
	payload := wire.FishSpawn{
		TargetID: f.ID,
		Species:  f.SpecID,
		Tier:     uint8(f.Tier),
		Flags:    flags,
		HP:       uint16(f.HP),
		MaxHP:    uint16(f.MaxHP),
		X:        f.X,
		Z:        f.Z,
		VX:       f.VX,
		VZ:       f.VZ,
		Size:     float32(f.Size),
		Rotation: float32(f.Rotation),
	}.Encode()
	for _, m := range r.members {
		r.send(m, id, payload)
	}
}

// Join seats a new player. Runs on the loop via call, so the caller
// blocks until the seat is taken (or the room refuses).
func (r *Room) Join(sess Sender, name string, nowMs int64) (wire.PlayerJoin, *wire.Error) {
	var pj wire.PlayerJoin
	var werr *wire.Error
	ok := r.call(func() {
		if len(r.members) >= r.maxPlayers {
			werr = &wire.Error{Code: wire.ROOM_FULL}
			return
		}
		player := wire.PlayerID(uuid.New())
		m := &member{
			sess:      sess,
			player:    player,
			name:      name,
			seat:      r.freeSeat(),
			weapon:    defaultWeapon(r.cfg),
			balanceFp: startingBalanceFp,
			lastShot:  make(map[string]int64),
		}
		if len(r.members) == 0 {
			r.host = player
		}
		r.members[player] = m
		pj = wire.PlayerJoin{
			Player:    player,
			Name:      name,
			RoomCode:  r.code,
			Seat:      m.seat,
			IsHost:    r.host == player,
			BalanceFp: m.balanceFp,
		}
		payload := pj.Encode()
		for _, other := range r.members {
			r.send(other, wire.PacketPlayerJoin, payload)
		}
		log.Infof("room %s: %s joined seat %d", r.code, name, m.seat)
	})
	if !ok {
		return wire.PlayerJoin{}, &wire.Error{Code: wire.INVALID_ROOM, Msg: "room closed"}
	}
	return pj, werr
}

func (r *Room) freeSeat() uint8 {
	used := make(map[uint8]bool, len(r.members))
	for _, m := range r.members {
		used[m.seat] = true
	}
	for seat := uint8(0); ; seat++ {
		if !used[seat] {
			return seat
		}
	}
}

func defaultWeapon(cfg config.Config) string {
	if _, ok := cfg.Weapons["1x"]; ok {
		return "1x"
	}
	keys := make([]string, 0, len(cfg.Weapons))
	for k := range cfg.Weapons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}

// Leave removes a player, releases their payout and anomaly state, and
// closes the room when nobody is left.
func (r *Room) Leave(player wire.PlayerID) {
	r.post(func() {
		m, ok := r.members[player]
		if !ok {
			return
		}
		delete(r.members, player)
		r.engine.ClearPlayerStates(player)
		r.detector.Forget(player)
		log.Infof("room %s: %s left", r.code, m.name)

		if len(r.members) == 0 {
			r.close()
			return
		}
		if r.host == player {
			next := r.sortedMembers()[0]
			r.host = next.player
			log.Infof("room %s: host reassigned to %s", r.code, next.name)
		}
	})
}

// close ends the loop and persists the room record. Runs on the loop.
func (r *Room) close() {
	if r.sink != nil {
		rec := audit.RoomRecord{
			RoomID:         r.code,
			SeedCommitment: r.seedHash,
			RulesVersion:   r.rules.Version,
			ReceiptCount:   r.chain.Len(),
			TipHash:        r.chain.Tip(),
			ClosedAt:       time.Now().UTC(),
		}
		if err := r.sink.PutRoomRecord(rec); err != nil {
			log.Errorf("room %s: persist record: %v", r.code, err)
		}
	}
	r.cancel()
	if r.onEmpty != nil {
		r.onEmpty(r.code)
	}
	log.Infof("room %s closed after %d receipts", r.code, r.chain.Len())
}

// Start flips the room into the playing phase. Host only.
func (r *Room) Start(player wire.PlayerID) {
	r.post(func() {
		m, ok := r.members[player]
		if !ok {
			return
		}
		if r.host != player {
			m.sess.SendError(wire.INVALID_ROOM, "only the host starts the game")
			return
		}
		if r.phase == phasePlaying {
			return
		}
		r.phase = phasePlaying
		log.Infof("room %s: game started", r.code)
	})
}

// SwitchWeapon changes the member's active weapon.
func (r *Room) SwitchWeapon(player wire.PlayerID, weapon string) {
	r.post(func() {
		if m, ok := r.members[player]; ok {
			m.weapon = weapon
		}
	})
}

// FireShot admits one already rate-limited, sequence-valid shot into
// the room: cooldowns, anomaly state, and balance are checked here
// because the loop owns them.
func (r *Room) FireShot(player wire.PlayerID, shot wire.ShotFired, nowMs int64) {
	r.post(func() { r.handleShot(player, shot, nowMs) })
}

func (r *Room) handleShot(player wire.PlayerID, shot wire.ShotFired, nowMs int64) {
	m, ok := r.members[player]
	if !ok {
		return
	}
	if r.phase != phasePlaying {
		m.sess.SendError(wire.INVALID_ROOM, "game not started")
		return
	}
	w, ok := r.cfg.Weapons[shot.Weapon]
	if !ok {
		m.sess.SendError(wire.INVALID_WEAPON, shot.Weapon)
		return
	}
	if r.detector.Level(player) == anticheat.EscalationDisconnect {
		m.sess.SendError(wire.INVALID_SESSION, "anomaly disconnect")
		m.sess.Close()
		return
	}
	if r.detector.InCooldown(player, nowMs) {
		m.sess.SendError(wire.RATE_LIMITED, "anomaly cooldown")
		return
	}
	if last, fired := m.lastShot[shot.Weapon]; fired && nowMs-last < w.CooldownMs {
		m.sess.SendError(wire.RATE_LIMITED, "weapon cooldown")
		return
	}
	if m.balanceFp < w.CostFp {
		m.sess.SendError(wire.INSUFFICIENT_BALANCE, "")
		return
	}

	m.balanceFp -= w.CostFp
	m.lastShot[shot.Weapon] = nowMs
	m.weapon = shot.Weapon
	r.sendBalance(m, -w.CostFp, balanceReasonShot)

	switch w.Class {
	case "single":
		b := r.world.FireBullet(player, shot.Weapon, w.Damage, w.CostFp,
			shot.OriginX, shot.OriginZ, shot.TargetX, shot.TargetZ)
		r.bullets[b.ID] = bulletMeta{owner: player, weapon: shot.Weapon, seq: shot.Seq}
	case "aoe":
		targets := r.world.TargetsNear(shot.TargetX, shot.TargetZ, aoeRadius, r.cfg.AOEMaxTargets)
		r.fireMulti(m, shot, w, "aoe", targets, nowMs)
	case "laser":
		targets := r.world.TargetsAlongBeam(shot.OriginX, shot.OriginZ,
			shot.TargetX, shot.TargetZ, laserHalfWidth, r.cfg.LaserMaxTargets)
		r.fireMulti(m, shot, w, "laser", targets, nowMs)
	}
}

// fireMulti resolves an area or beam event instantly: no projectile,
// one pseudo-shot per candidate with split cost and budget.
func (r *Room) fireMulti(m *member, shot wire.ShotFired, w config.WeaponSpec, class string, targets []*game.Fish, nowMs int64) {
	r.observeShot(m.player, shot.Weapon, len(targets) > 0, nowMs)
	if len(targets) == 0 {
		return
	}

	cands := make([]rtp.Candidate, len(targets))
	for i, f := range targets {
		cands[i] = rtp.Candidate{
			Target:   f.ID,
			Tier:     f.Tier,
			Distance: int64(math.Hypot(f.X-shot.TargetX, f.Z-shot.TargetZ)),
		}
		r.world.ApplyDamage(f.ID, m.player, w.Damage)
	}

	outcomes, _, err := r.engine.RegisterMulti(m.player, w.CostFp, class, cands)
	if err != nil {
		log.Errorf("room %s: multi register: %v", r.code, err)
		return
	}
	for i, out := range outcomes {
		if out.Kill {
			r.settleKill(cands[i].Target, out.RewardFp, uint8(out.Reason))
		}
		r.send(m, wire.PacketHitResult, wire.HitResult{
			Seq:       shot.Seq,
			TargetID:  cands[i].Target,
			Kill:      out.Kill,
			Reason:    uint8(out.Reason),
			RewardFp:  out.RewardFp,
			BalanceFp: m.balanceFp,
		}.Encode())
	}
}

// resolveHit settles one bullet-target intersection from the tick.
func (r *Room) resolveHit(h game.Hit, nowMs int64) {
	meta, ok := r.bullets[h.Bullet.ID]
	if !ok {
		return
	}
	delete(r.bullets, h.Bullet.ID)
	m, ok := r.members[meta.owner]
	if !ok {
		// Owner disconnected between fire and impact; their payout
		// state is already cleared, so the hit settles nothing.
		return
	}

	r.observeShot(meta.owner, meta.weapon, true, nowMs)

	out, err := r.engine.RegisterShot(meta.owner, h.Fish.ID, h.Bullet.CostFp, h.Fish.Tier)
	if err != nil {
		log.Errorf("room %s: register shot: %v", r.code, err)
		return
	}
	if out.Kill {
		r.settleKill(h.Fish.ID, out.RewardFp, uint8(out.Reason))
	}
	r.send(m, wire.PacketHitResult, wire.HitResult{
		Seq:       meta.seq,
		BulletID:  h.Bullet.ID,
		TargetID:  h.Fish.ID,
		Kill:      out.Kill,
		Reason:    uint8(out.Reason),
		RewardFp:  out.RewardFp,
		BalanceFp: m.balanceFp,
	}.Encode())
}

// settleKill pays the reward out by damage contribution, mints the
// receipt, and announces the death.
func (r *Room) settleKill(targetID uint32, rewardFp int64, reason uint8) {
	f, ok := r.world.KillFish(targetID)
	if !ok {
		return
	}
	contribs := game.Attribute(rewardFp, f.DamageByPlayer)

	auditContribs := make([]audit.Contributor, 0, len(contribs))
	wireContribs := make([]wire.HitContribution, 0, len(contribs))
	for _, c := range contribs {
		auditContribs = append(auditContribs, audit.Contributor{Player: c.Player, AmountFp: c.AmountFp})
		wireContribs = append(wireContribs, wire.HitContribution{Player: c.Player, AmountFp: c.AmountFp})
		if cm, ok := r.members[c.Player]; ok {
			cm.balanceFp += c.AmountFp
			r.sendBalance(cm, c.AmountFp, balanceReasonKill)
		}
	}

	receipt, err := r.chain.Append(targetID, rewardFp, r.rules, auditContribs)
	if err != nil {
		log.Errorf("room %s: receipt for target %d: %v", r.code, targetID, err)
	} else if r.sink != nil {
		if err := r.sink.AppendReceipt(r.code, receipt); err != nil {
			log.Errorf("room %s: persist receipt %d: %v", r.code, receipt.Seq, err)
		}
	}

	r.engine.ClearTargetStates(targetID)

	death := wire.FishDeath{
		TargetID:     targetID,
		Killer:       f.LastHitBy,
		RewardFp:     rewardFp,
		Tier:         uint8(f.Tier),
		Reason:       reason,
		RulesVersion: r.rules.Version,
		Contributors: wireContribs,
	}.Encode()
	for _, m := range r.members {
		r.send(m, wire.PacketFishDeath, death)
	}
}

func (r *Room) sendBalance(m *member, deltaFp int64, reason uint8) {
	r.send(m, wire.PacketBalanceUpdate, wire.BalanceUpdate{
		Player:       m.player,
		BalanceFp:    m.balanceFp,
		DeltaFp:      deltaFp,
		Reason:       reason,
		RulesVersion: r.rules.Version,
	}.Encode())
}

// observeShot books one shot with the anomaly detector and enforces the
// disconnect rung immediately.
func (r *Room) observeShot(player wire.PlayerID, weapon string, hit bool, nowMs int64) {
	if r.detector.RecordShot(player, weapon, hit, nowMs) == anticheat.EscalationDisconnect {
		if m, ok := r.members[player]; ok {
			m.sess.SendError(wire.INVALID_SESSION, "anomaly disconnect")
			m.sess.Close()
		}
	}
}
