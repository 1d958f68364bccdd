package alertsvc

import (
	"bytes"

	"github.com/davecgh/go-spew/spew"

	"github.com/aleph-forkalert/forkalert/alert"
	"github.com/aleph-forkalert/forkalert/backup"
	"github.com/aleph-forkalert/forkalert/crypto"
	"github.com/aleph-forkalert/forkalert/rmc"
	"github.com/aleph-forkalert/forkalert/types"
	"github.com/aleph-forkalert/forkalert/unit"
	"github.com/aleph-forkalert/forkalert/wire"
)

// handleNetworkMessage decodes one inbound frame and dispatches it by
// AlertMessage variant. A decode failure is dropped and logged; this layer
// never trusts the network.
func (s *Service) handleNetworkMessage(data types.NetworkData) {
	msg, err := wire.Decode(bytes.NewReader(data))
	if err != nil {
		log.Warnf("dropping malformed network message: %v", err)
		log.Debugf("raw message dump: %s", spew.Sdump(data))
		return
	}

	switch msg.Kind {
	case wire.KindForkAlert:
		s.handleForkAlertMessage(msg.ForkAlert)
	case wire.KindRmcHash:
		s.handleRmcHashMessage(msg.RmcSender, msg.Rmc)
	case wire.KindAlertRequest:
		s.handleAlertRequestMessage(msg.Requester, msg.Hash)
	}
}

func (s *Service) handleForkAlertMessage(signed alert.SignedAlert) {
	result, err := s.handler.OnNetworkAlert(signed)
	if err != nil {
		log.Warnf("rejecting network alert: %v", err)
		return
	}
	if result == nil {
		// Cached for future AlertRequest probes only; a canonical alert
		// for this (sender, forker) pair is already being multicast.
		return
	}

	s.networkAlertResponses[result.Hash] = pendingNetworkAlert{notification: result.Notification}
	s.metrics.alertsTotal.WithLabelValues("network").Inc()
	s.enqueueBackup(backup.NewNetworkAlertRecord(signed), purposeNetworkAlert, result.Hash)
}

func (s *Service) handleRmcHashMessage(sender types.NodeIndex, msg wire.RmcMessage) {
	result := s.handler.OnRmcMessage(sender, msg.Hash, msg.IsComplete())
	switch result.Outcome {
	case alert.RmcForward:
		if msg.IsComplete() {
			if err := s.engine.HandleComplete(msg.Hash, msg.Multisignature); err != nil {
				log.Warnf("dropping invalid multisignature for %x: %v", msg.Hash, err)
			}
			return
		}
		if err := s.engine.HandlePartialSig(msg.Hash, msg.Signer, msg.Signature); err != nil {
			log.Warnf("dropping invalid partial sig for %x: %v", msg.Hash, err)
		}
	case alert.RmcRequestAlert:
		s.sendAlertRequest(result.Hash, result.RequestFrom)
	case alert.RmcDropStale:
		// Silent per spec: this hash's designation has moved on.
	}
}

func (s *Service) handleAlertRequestMessage(requester types.NodeIndex, hash crypto.Hash) {
	signed, ok := s.handler.OnAlertRequest(hash)
	if !ok {
		log.Debugf("alert request for unknown hash %x from %v", hash, requester)
		return
	}
	s.sendForkAlert(signed, types.RecipientNode(requester))
}

// handleOwnAlert processes a freshly raised alert from local consensus: the
// caller has already verified the underlying fork.
func (s *Service) handleOwnAlert(a *alert.Alert) {
	signed, hash, err := s.handler.OnOwnAlert(a)
	if err != nil {
		log.Errorf("failed to sign own alert: %v", err)
		return
	}

	s.ownAlertResponses[hash] = pendingOwnAlert{signed: signed}
	s.metrics.alertsTotal.WithLabelValues("own").Inc()
	s.recordForker(a.Forker())
	s.enqueueBackup(backup.NewOwnAlertRecord(signed), purposeOwnAlert, hash)
}

// handleRmcEvent reacts to the RMC engine's outgoing events: periodic
// partial-signature broadcasts, and the one-shot multisignature
// completion.
func (s *Service) handleRmcEvent(ev rmc.Event) {
	switch ev.Kind {
	case rmc.EventPartialSig:
		msg := wire.NewRmcHash(s.cfg.OwnIndex, wire.NewPartialSig(ev.Hash, ev.Signer, ev.Signature))
		s.send(msg, types.RecipientEveryone())

	case rmc.EventMultisigned:
		result, err := s.handler.AlertConfirmed(ev.Hash)
		if err != nil {
			log.Errorf("multisig completed for unknown alert %x: %v", ev.Hash, err)
			return
		}
		if result.LegitUnitsInvalid {
			log.Warnf("alert %x confirmed but legit_units failed validation", ev.Hash)
		}
		if _, ok := s.drivingHashes[ev.Hash]; ok {
			delete(s.drivingHashes, ev.Hash)
			s.metrics.activeRmcHashes.Dec()
		}
		s.multisignedNotifications[ev.Hash] = pendingMultisig{notification: result.Notification}
		s.enqueueBackup(backup.NewMultisignedRecord(ev.Hash, ev.Multisig.Encode()), purposeMultisig, ev.Hash)
	}
}

// startDrivingHash tells the RMC engine to begin (or promote into) driving
// hash and records it as active, so the activeRmcHashes gauge only counts
// down hashes it actually counted up.
func (s *Service) startDrivingHash(hash crypto.Hash) {
	if _, ok := s.drivingHashes[hash]; !ok {
		s.drivingHashes[hash] = struct{}{}
		s.metrics.activeRmcHashes.Inc()
	}
	s.engine.StartHash(hash)
}

// handleBackupAck finalises whichever pending action the matching backup
// write was gating. A missing pending-table entry is a protocol bug.
func (s *Service) handleBackupAck(ack backupAck) {
	if ack.err != nil {
		log.Errorf("backup write failed, terminating: %v", ack.err)
		go s.Stop()
		return
	}

	switch ack.purpose {
	case purposeOwnAlert:
		pending, ok := s.ownAlertResponses[ack.hash]
		if !ok {
			log.Errorf("%v", errMissingPendingAck)
			return
		}
		delete(s.ownAlertResponses, ack.hash)
		s.send(wire.NewForkAlert(pending.signed), types.RecipientEveryone())
		s.startDrivingHash(ack.hash)

	case purposeNetworkAlert:
		pending, ok := s.networkAlertResponses[ack.hash]
		if !ok {
			log.Errorf("%v", errMissingPendingAck)
			return
		}
		delete(s.networkAlertResponses, ack.hash)
		if pending.notification != nil {
			s.notify(*pending.notification)
		}
		s.startDrivingHash(ack.hash)

	case purposeMultisig:
		pending, ok := s.multisignedNotifications[ack.hash]
		if !ok {
			log.Errorf("%v", errMissingPendingAck)
			return
		}
		delete(s.multisignedNotifications, ack.hash)
		if pending.notification != nil {
			s.metrics.unitsReleased.Add(float64(len(pending.notification.Units)))
			s.notify(*pending.notification)
		}

	case purposeUnit:
		coord, ok := s.pendingUnits[ack.hash]
		if !ok {
			log.Errorf("%v", errMissingPendingAck)
			return
		}
		delete(s.pendingUnits, ack.hash)
		select {
		case s.cfg.UnitsAck <- coord:
		case <-s.quit:
		}
	}
}

// handleIncomingUnit persists a unit handed over the backup-coupling
// channel by the external unit-creator.
func (s *Service) handleIncomingUnit(su unit.SignedUnit) {
	hash := su.Unit.Hash(s.cfg.Hasher)
	s.pendingUnits[hash] = su.Unit.Coord()
	s.enqueueBackup(backup.NewUnitRecord(su), purposeUnit, hash)
}

func (s *Service) notify(n alert.ForkingNotification) {
	if n.Forker != nil {
		s.recordForker(n.Forker.Creator())
	}
	select {
	case s.cfg.Notifications <- n:
	case <-s.quit:
	}
}

// recordForker mirrors a newly discovered forker into the optional
// persistent secondary index, if one is configured. The index is queryable
// state only; nothing in the load contract depends on it, so a failure
// here is logged rather than treated as fatal.
func (s *Service) recordForker(creator types.NodeIndex) {
	if s.cfg.ForkerIndex == nil {
		return
	}
	if err := s.cfg.ForkerIndex.RecordForker(creator); err != nil {
		log.Errorf("failed to record forker %v in secondary index: %v", creator, err)
	}
}

func (s *Service) send(msg wire.AlertMessage, recipient types.Recipient) {
	enc, err := msg.EncodeToBytes()
	if err != nil {
		log.Errorf("failed to encode outgoing message: %v", err)
		return
	}
	if err := s.cfg.Network.Send(enc, recipient); err != nil {
		log.Warnf("send to %v failed: %v", recipient, err)
	}
}

func (s *Service) sendForkAlert(signed alert.SignedAlert, recipient types.Recipient) {
	s.send(wire.NewForkAlert(signed), recipient)
}

func (s *Service) sendAlertRequest(hash crypto.Hash, to types.NodeIndex) {
	s.send(wire.NewAlertRequest(s.cfg.OwnIndex, hash), types.RecipientNode(to))
}
