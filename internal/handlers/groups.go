package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/models"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/services"
	"github.com/shamandhungel-voodoo/SyncScholars-backend/internal/session"
)

func CreateGroupHandler(groupService *services.GroupService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		username, _ := c.Locals("username").(string)

		var req models.CreateGroupRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}

		group, err := groupService.CreateGroup(c.Context(), userID, username, req)
		if err != nil {
			return groupError(c, err)
		}
		return c.Status(201).JSON(group)
	}
}

func GetGroupHandler(groupService *services.GroupService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		group, err := groupService.FindGroup(c.Context(), c.Params("code"))
		if err != nil {
			return groupError(c, err)
		}
		return c.JSON(group)
	}
}

func JoinGroupHandler(groupService *services.GroupService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		username, _ := c.Locals("username").(string)

		var req models.JoinGroupRequest
		if err := c.BodyParser(&req); err == nil && req.Username != "" {
			username = req.Username
		}

		res, err := groupService.JoinGroup(c.Context(), c.Params("code"), userID, username)
		if err != nil {
			return groupError(c, err)
		}
		return c.JSON(res)
	}
}

func ListUserGroupsHandler(groupService *services.GroupService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		groups, err := groupService.ListUserGroups(c.Context(), c.Params("user_id"))
		if err != nil {
			return groupError(c, err)
		}
		if groups == nil {
			groups = []models.Group{}
		}
		return c.JSON(groups)
	}
}

func GetTimerHandler(groupService *services.GroupService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := groupService.TimerSnapshot(c.Context(), c.Params("code"))
		if err != nil {
			return groupError(c, err)
		}
		return c.JSON(snap)
	}
}

func groupError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "Group not found"})
	case errors.Is(err, session.ErrCapacity):
		return c.Status(400).JSON(fiber.Map{"error": "Group is full"})
	case errors.Is(err, session.ErrConflict):
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, session.ErrInternal):
		return c.Status(500).JSON(fiber.Map{"error": "Internal error"})
	default:
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
}
