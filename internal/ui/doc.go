// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui is the Bubble Tea front end of the MindStack client.
//
// Screens:
//   - login: sign in or create an account
//   - projects: list and create projects
//   - project: capture timeline next to the project chat
//
// Every network call runs in a tea.Cmd. A chat answer streams through a
// chat.Session whose change notifications are turned into messages by a
// waiting command, so the view re-renders after every reduction. Any call
// that finds the session gone sends the user back to the login screen.
package ui
