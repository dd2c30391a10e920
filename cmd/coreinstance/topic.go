// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kittwire/core/internal/model"
	"github.com/kittwire/core/internal/topic"
)

var topicCmd = &cobra.Command{
	Use:   "topic",
	Short: "Manages conversation topics",
}

var (
	topicName         string
	topicParticipants []string
)

var topicCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates a topic among this instance's local identity and one or more participants",
	RunE:  runTopicCreate,
}

func init() {
	topicCreateCmd.Flags().StringVar(&topicName, "name", "", "topic name (ignored for a two-party topic)")
	topicCreateCmd.Flags().StringArrayVar(&topicParticipants, "participant", nil, "hex-encoded Person hash of a participant; repeat for N-party topics")
	topicCreateCmd.MarkFlagRequired("participant")

	topicCmd.AddCommand(topicCreateCmd)
}

func runTopicCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := newLogger("coreinstance-topic", false)
	defer log.Close()

	in, err := bootstrap(ctx, dataDir, nil, log)
	if err != nil {
		return err
	}
	defer in.Close()

	participants := make([]model.Hash, len(topicParticipants))
	for i, raw := range topicParticipants {
		h, err := parseParticipantHash(raw)
		if err != nil {
			return err
		}
		participants[i] = h
	}

	if len(participants) == 1 {
		if _, err := in.fabric.CreateTwoPartyTopic(ctx, in.self, participants[0]); err != nil {
			return err
		}
		topicID := topic.TwoPartyTopicID(in.self, participants[0])
		fmt.Println(topicID)
		return nil
	}

	if topicName == "" {
		return fmt.Errorf("topic create: --name is required for an N-party topic")
	}
	all := append([]model.Hash{in.self}, participants...)
	topicIDHash, _, err := in.fabric.CreateNPartyTopic(ctx, topicName, all)
	if err != nil {
		return err
	}
	env, err := in.store.Get(ctx, topicIDHash)
	if err != nil {
		return err
	}
	value, err := model.DecodeValue(env.Type, env.Value)
	if err != nil {
		return err
	}
	t, ok := value.(model.Topic)
	if !ok {
		return fmt.Errorf("topic create: unexpected stored type %s", env.Type)
	}
	fmt.Println(t.TopicID)
	return nil
}

func parseParticipantHash(raw string) (model.Hash, error) {
	h, err := model.ParseHash(raw)
	if err != nil {
		return model.Hash{}, fmt.Errorf("topic create: invalid participant hash %q: %w", raw, err)
	}
	return h, nil
}
